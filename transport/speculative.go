package transport

import "time"

// SpeculativeExecutionPolicy yields (count, delay) for an idempotent
// request: up to count additional parallel attempts on distinct hosts,
// spaced delay apart, racing the original for the first terminal response
// (spec.md §4.3 "Speculative execution").
type SpeculativeExecutionPolicy interface {
	Plan() SpeculativePlan
}

// SpeculativePlan produces successive delays; a zero duration with ok=false
// means no further speculative attempt should be scheduled.
type SpeculativePlan interface {
	NextExecution(lastAttemptStarted bool) (delay time.Duration, ok bool)
}

// NoSpeculativeExecution never schedules additional attempts.
type NoSpeculativeExecution struct{}

func (NoSpeculativeExecution) Plan() SpeculativePlan { return noSpeculativePlan{} }

type noSpeculativePlan struct{}

func (noSpeculativePlan) NextExecution(bool) (time.Duration, bool) { return 0, false }

// ConstantSpeculativeExecutionPolicy issues up to MaxAttempts additional
// executions, Delay apart.
type ConstantSpeculativeExecutionPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

func (p ConstantSpeculativeExecutionPolicy) Plan() SpeculativePlan {
	return &constantSpeculativePlan{delay: p.Delay, remaining: p.MaxAttempts}
}

type constantSpeculativePlan struct {
	delay     time.Duration
	remaining int
}

func (p *constantSpeculativePlan) NextExecution(bool) (time.Duration, bool) {
	if p.remaining <= 0 {
		return 0, false
	}
	p.remaining--
	return p.delay, true
}
