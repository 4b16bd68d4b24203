package transport

import "testing"

func TestNoSpeculativeExecutionNeverSchedules(t *testing.T) {
	plan := NoSpeculativeExecution{}.Plan()
	if _, ok := plan.NextExecution(true); ok {
		t.Fatal("NoSpeculativeExecution scheduled an attempt")
	}
}

func TestConstantSpeculativeExecutionPolicyExhausts(t *testing.T) {
	plan := ConstantSpeculativeExecutionPolicy{Delay: 5, MaxAttempts: 2}.Plan()

	d, ok := plan.NextExecution(true)
	if !ok || d != 5 {
		t.Fatalf("1st NextExecution = (%v, %v), want (5, true)", d, ok)
	}
	d, ok = plan.NextExecution(true)
	if !ok || d != 5 {
		t.Fatalf("2nd NextExecution = (%v, %v), want (5, true)", d, ok)
	}
	if _, ok = plan.NextExecution(true); ok {
		t.Fatal("3rd NextExecution should report exhausted plan")
	}
}

func TestConstantSpeculativeExecutionPolicyZeroAttempts(t *testing.T) {
	plan := ConstantSpeculativeExecutionPolicy{Delay: 5, MaxAttempts: 0}.Plan()
	if _, ok := plan.NextExecution(true); ok {
		t.Fatal("MaxAttempts=0 should never schedule an attempt")
	}
}

func TestConstantSpeculativeExecutionPolicyIndependentPlans(t *testing.T) {
	p := ConstantSpeculativeExecutionPolicy{Delay: 1, MaxAttempts: 1}
	a := p.Plan()
	b := p.Plan()

	if _, ok := a.NextExecution(true); !ok {
		t.Fatal("plan a should allow one attempt")
	}
	if _, ok := a.NextExecution(true); ok {
		t.Fatal("plan a should be exhausted")
	}
	if _, ok := b.NextExecution(true); !ok {
		t.Fatal("plan b should be independent of plan a's exhaustion")
	}
}
