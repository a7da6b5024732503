package provider

import "testing"

func TestBreakerTripsAfterThreshold(t *testing.T) {
	bs := NewBreakers(BreakerConfig{FailureThreshold: 3})

	if !bs.IsAvailable("icypeas") {
		t.Fatal("expected new provider to start available")
	}

	bs.RecordFailure("icypeas")
	bs.RecordFailure("icypeas")
	if !bs.IsAvailable("icypeas") {
		t.Fatal("expected provider to remain available below threshold")
	}

	bs.RecordFailure("icypeas")
	if bs.IsAvailable("icypeas") {
		t.Fatal("expected provider to trip into cooldown at threshold")
	}
}

func TestBreakerRecoversOnSuccess(t *testing.T) {
	bs := NewBreakers(BreakerConfig{FailureThreshold: 2})

	bs.RecordFailure("hunter")
	bs.RecordFailure("hunter")
	if bs.IsAvailable("hunter") {
		t.Fatal("expected provider to be tripped")
	}

	bs.RecordSuccess("hunter")
	if !bs.IsAvailable("hunter") {
		t.Fatal("expected success to restore availability")
	}
}

func TestBreakerNotifiesStateChange(t *testing.T) {
	bs := NewBreakers(BreakerConfig{FailureThreshold: 1})

	var gotProvider, gotTo string
	bs.OnStateChange(func(provider, from, to string) {
		gotProvider, gotTo = provider, to
	})

	bs.RecordFailure("apollo")

	if gotProvider != "apollo" {
		t.Errorf("expected callback for apollo, got %q", gotProvider)
	}
	if gotTo != "cooldown" {
		t.Errorf("expected transition to cooldown, got %q", gotTo)
	}
}
