package models

import "testing"

func TestPayoutTransitionAllowed(t *testing.T) {
	statuses := []string{
		PayoutStatusPending,
		PayoutStatusProcessing,
		PayoutStatusCompleted,
		PayoutStatusFailed,
		PayoutStatusCancelled,
	}

	allowed := map[[2]string]bool{
		{PayoutStatusPending, PayoutStatusProcessing}:   true,
		{PayoutStatusPending, PayoutStatusCancelled}:    true,
		{PayoutStatusPending, PayoutStatusFailed}:       true,
		{PayoutStatusProcessing, PayoutStatusCompleted}: true,
		{PayoutStatusProcessing, PayoutStatusFailed}:    true,
	}

	// Every other pair, including self moves and anything out of a terminal
	// state, must be rejected.
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]string{from, to}]
			if got := PayoutTransitionAllowed(from, to); got != want {
				t.Errorf("PayoutTransitionAllowed(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}

	if PayoutTransitionAllowed("bogus", PayoutStatusCompleted) {
		t.Error("unknown status should never transition")
	}
}

func TestPayoutStatusTerminal(t *testing.T) {
	terminal := map[string]bool{
		PayoutStatusPending:    false,
		PayoutStatusProcessing: false,
		PayoutStatusCompleted:  true,
		PayoutStatusFailed:     true,
		PayoutStatusCancelled:  true,
	}
	for status, want := range terminal {
		if got := PayoutStatusTerminal(status); got != want {
			t.Errorf("PayoutStatusTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}
