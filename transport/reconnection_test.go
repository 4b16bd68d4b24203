package transport

import "testing"

func TestConstantReconnectionPolicy(t *testing.T) {
	p := ConstantReconnectionPolicy{Delay: 42}
	s := p.NewSchedule()
	for i := 0; i < 5; i++ {
		if got := s.NextDelay(); got != 42 {
			t.Fatalf("NextDelay() = %v, want 42", got)
		}
	}
	s.Reset()
	if got := s.NextDelay(); got != 42 {
		t.Fatalf("NextDelay() after reset = %v, want 42", got)
	}
}

func TestExponentialReconnectionPolicyBounds(t *testing.T) {
	p := ExponentialReconnectionPolicy{BaseDelay: 10, MaxDelay: 1000}
	s := p.NewSchedule()

	for i := 0; i < 100; i++ {
		d := s.NextDelay()
		if d < p.BaseDelay {
			t.Fatalf("delay %v below base %v at attempt %d", d, p.BaseDelay, i)
		}
		if d > p.MaxDelay {
			t.Fatalf("delay %v above max %v at attempt %d", d, p.MaxDelay, i)
		}
	}
}

func TestExponentialReconnectionPolicyGrows(t *testing.T) {
	p := ExponentialReconnectionPolicy{BaseDelay: 10, MaxDelay: 100000}
	s := p.NewSchedule()

	first := s.NextDelay()
	var last = first
	grew := false
	for i := 0; i < 20; i++ {
		d := s.NextDelay()
		if d > last {
			grew = true
		}
		last = d
	}
	if !grew {
		t.Fatal("expected delay to grow across attempts before saturating at max")
	}
}

func TestExponentialReconnectionPolicyResetRestartsGrowth(t *testing.T) {
	p := ExponentialReconnectionPolicy{BaseDelay: 10, MaxDelay: 100000}
	s := p.NewSchedule()

	for i := 0; i < 10; i++ {
		s.NextDelay()
	}
	s.Reset()
	d := s.NextDelay()
	if d < p.BaseDelay || d > p.BaseDelay*2 {
		// first delay after reset should be close to base (±15% jitter).
		t.Fatalf("delay after reset = %v, want near base %v", d, p.BaseDelay)
	}
}

func TestExponentialReconnectionPolicyNeverOverflows(t *testing.T) {
	p := ExponentialReconnectionPolicy{BaseDelay: 10, MaxDelay: 1 << 40}
	s := p.NewSchedule()

	for i := 0; i < 1000; i++ {
		d := s.NextDelay()
		if d < 0 {
			t.Fatalf("delay overflowed to negative at attempt %d: %v", i, d)
		}
		if d > p.MaxDelay {
			t.Fatalf("delay %v exceeds max %v at attempt %d", d, p.MaxDelay, i)
		}
	}
}
