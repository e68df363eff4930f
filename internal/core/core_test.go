package core

import (
	"errors"
	"testing"
)

func TestSourceStatusIsValid(t *testing.T) {
	valid := []SourceStatus{StatusPending, StatusDownloaded, StatusProcessed, StatusFailed}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("Expected %q to be valid", s)
		}
	}
	if SourceStatus("archived").IsValid() {
		t.Error("Expected unknown status to be invalid")
	}
	if SourceStatus("").IsValid() {
		t.Error("Expected empty status to be invalid")
	}
}

func TestSourceStatusIsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() {
		t.Error("pending should not be terminal")
	}
	if StatusDownloaded.IsTerminal() {
		t.Error("downloaded should not be terminal")
	}
	if !StatusProcessed.IsTerminal() {
		t.Error("processed should be terminal")
	}
	if !StatusFailed.IsTerminal() {
		t.Error("failed should be terminal")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  SourceStatus
		to    SourceStatus
		force bool
		want  bool
	}{
		{"pending to downloaded", StatusPending, StatusDownloaded, false, true},
		{"downloaded to processed", StatusDownloaded, StatusProcessed, false, true},
		{"pending to processed", StatusPending, StatusProcessed, false, true},
		{"any to failed", StatusDownloaded, StatusFailed, false, true},
		{"pending to failed", StatusPending, StatusFailed, false, true},
		{"same state", StatusDownloaded, StatusDownloaded, false, true},
		{"processed back to pending", StatusProcessed, StatusPending, false, false},
		{"downloaded back to pending", StatusDownloaded, StatusPending, false, false},
		{"processed back to pending forced", StatusProcessed, StatusPending, true, true},
		{"processed back to downloaded forced", StatusProcessed, StatusDownloaded, true, true},
		{"failed to pending", StatusFailed, StatusPending, false, false},
		{"failed to pending forced", StatusFailed, StatusPending, true, true},
		{"failed to downloaded forced", StatusFailed, StatusDownloaded, true, true},
		{"unknown from", SourceStatus("bogus"), StatusPending, false, false},
		{"unknown to", StatusPending, SourceStatus("bogus"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanTransition(tt.from, tt.to, tt.force)
			if got != tt.want {
				t.Errorf("CanTransition(%s, %s, force=%v) = %v, want %v", tt.from, tt.to, tt.force, got, tt.want)
			}
		})
	}
}

func TestTransitionError(t *testing.T) {
	got, err := Transition(StatusProcessed, StatusPending, false)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	if got != StatusProcessed {
		t.Errorf("Expected status to stay processed on rejected transition, got %s", got)
	}

	got, err = Transition(StatusPending, StatusDownloaded, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != StatusDownloaded {
		t.Errorf("Expected downloaded, got %s", got)
	}
}
