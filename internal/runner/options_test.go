package runner

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		validate func(*testing.T, Options)
	}{
		{
			name:  "defaults",
			input: Options{},
			validate: func(t *testing.T, o Options) {
				if o.Concurrency != 1 {
					t.Errorf("Concurrency = %d, want 1", o.Concurrency)
				}
				if o.ArrivalModel != ArrivalModelUniform {
					t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelUniform)
				}
				if o.RandomSeed == 0 {
					t.Error("RandomSeed should be non-zero")
				}
				if o.LimiterFactory == nil {
					t.Error("LimiterFactory should not be nil")
				}
			},
		},
		{
			name: "negative values corrected",
			input: Options{
				Concurrency:   -5,
				Duration:      -time.Second,
				RatePerSecond: -1,
				DrainGrace:    -time.Second,
			},
			validate: func(t *testing.T, o Options) {
				if o.Concurrency != 1 {
					t.Errorf("Concurrency = %d, want 1", o.Concurrency)
				}
				if o.Duration != 0 {
					t.Errorf("Duration = %s, want 0", o.Duration)
				}
				if o.RatePerSecond != 0 {
					t.Errorf("RatePerSecond = %d, want 0", o.RatePerSecond)
				}
				if o.DrainGrace != 0 {
					t.Errorf("DrainGrace = %s, want 0", o.DrainGrace)
				}
			},
		},
		{
			name: "preserve valid values",
			input: Options{
				Concurrency:   10,
				Duration:      time.Minute,
				RatePerSecond: 50,
				ArrivalModel:  ArrivalModelPoisson,
				RandomSeed:    12345,
			},
			validate: func(t *testing.T, o Options) {
				if o.Concurrency != 10 {
					t.Errorf("Concurrency = %d, want 10", o.Concurrency)
				}
				if o.Duration != time.Minute {
					t.Errorf("Duration = %s, want 1m", o.Duration)
				}
				if o.RatePerSecond != 50 {
					t.Errorf("RatePerSecond = %d, want 50", o.RatePerSecond)
				}
				if o.ArrivalModel != ArrivalModelPoisson {
					t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelPoisson)
				}
				if o.RandomSeed != 12345 {
					t.Errorf("RandomSeed = %d, want 12345", o.RandomSeed)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.input
			opts.normalize()
			tt.validate(t, opts)
		})
	}
}

func TestLimiterFactory(t *testing.T) {
	opts := Options{}
	opts.normalize()

	limiter := opts.LimiterFactory(0)
	if limiter.Limit() != rate.Inf {
		t.Errorf("Limit(0) = %v, want Inf", limiter.Limit())
	}

	rps := 100
	limiter = opts.LimiterFactory(rps)
	if limiter.Limit() != rate.Limit(rps) {
		t.Errorf("Limit(%d) = %v, want %v", rps, limiter.Limit(), rate.Limit(rps))
	}
	if limiter.Burst() != 1 {
		t.Errorf("Burst(%d) = %d, want 1", rps, limiter.Burst())
	}
}
