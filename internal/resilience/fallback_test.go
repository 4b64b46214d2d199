package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_CallsPrimaryWhenHealthy(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var reached string
	if err := fg.Execute(func(v string) error { reached = v; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if reached != "primary" {
		t.Fatalf("reached = %q, want primary", reached)
	}
}

func TestFallbackGroup_FailsOverToNextEntry(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var reached string
	err := fg.Execute(func(v string) error {
		if v == "primary" {
			return errProbe
		}
		reached = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if reached != "secondary" {
		t.Fatalf("reached = %q, want secondary", reached)
	}
}

func TestFallbackGroup_ReturnsErrAllFailedWhenEveryEntryFails(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	err := fg.Execute(func(v string) error { return errProbe })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenPrimaryBreakerRoutesAroundIt(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	fg.AddFallback("secondary", "secondary")

	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errProbe
			}
			return nil
		})
	}

	var reached string
	if err := fg.Execute(func(v string) error { reached = v; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if reached != "secondary" {
		t.Fatalf("reached = %q, want secondary (primary's breaker should be open by now)", reached)
	}
}

func TestExecuteWithResult_ReturnsThePrimarysValue(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "from-ten", nil
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "from-ten" {
		t.Fatalf("result = %q, want from-ten", result)
	}
}

func TestExecuteWithResult_FailsOverAndReturnsFallbacksValue(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "", errProbe
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}

func TestExecuteWithResult_ReturnsErrAllFailedWithNoFallbackRegistered(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(fg, func(v int) (string, error) { return "", errProbe })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
