package cloudsave_test

import (
	"testing"

	"cloudsave/internal/cloudsave"
)

func TestNotifier_Publish(t *testing.T) {
	t.Run("delivers to a draining consumer", func(t *testing.T) {
		n := cloudsave.NewNotifier(4)
		n.Publish(cloudsave.ProgressEvent{GameID: "105600", Status: cloudsave.StatusStarting})

		select {
		case ev := <-n.Events():
			if ev.GameID != "105600" {
				t.Errorf("GameID = %q, want %q", ev.GameID, "105600")
			}
		default:
			t.Fatal("expected an event in the channel")
		}
	})

	t.Run("drops events instead of blocking when full", func(t *testing.T) {
		n := cloudsave.NewNotifier(1)
		n.Publish(cloudsave.ProgressEvent{GameID: "first"})
		// Buffer is full; this must return immediately.
		n.Publish(cloudsave.ProgressEvent{GameID: "second"})

		ev := <-n.Events()
		if ev.GameID != "first" {
			t.Errorf("GameID = %q, want %q", ev.GameID, "first")
		}
		select {
		case ev := <-n.Events():
			t.Errorf("unexpected second event %+v", ev)
		default:
		}
	})

	t.Run("nil notifier drops silently", func(t *testing.T) {
		var n *cloudsave.Notifier
		n.Publish(cloudsave.ProgressEvent{GameID: "105600"})
	})
}

func TestSanitizeUserID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "player1", "player1"},
		{"keeps underscore and dash", "user_name-2", "user_name-2"},
		{"strips path separators", "a/b\\c", "abc"},
		{"strips dots and spaces", "u. s er", "user"},
		{"keeps unicode letters", "玩家1", "玩家1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cloudsave.SanitizeUserID(tt.in); got != tt.want {
				t.Errorf("SanitizeUserID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
