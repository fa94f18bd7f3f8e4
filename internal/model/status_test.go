package model

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"assigned", StatusAssigned, false},
		{"  In_Progress ", StatusInProgress, false},
		{"STUCK", StatusStuck, false},
		{"completed", StatusCompleted, false},
		{"cancelled", StatusCancelled, false},
		{"done", "", true},
		{"in progress", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStatus) {
					t.Fatalf("ParseStatus(%q) error = %v, want ErrInvalidStatus", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range Statuses {
		want := s == StatusCompleted || s == StatusCancelled
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	got, err := ParsePriority("")
	if err != nil || got != PriorityMedium {
		t.Fatalf("ParsePriority(\"\") = %q, %v; want medium", got, err)
	}
	got, err = ParsePriority("Urgent")
	if err != nil || got != PriorityUrgent {
		t.Fatalf("ParsePriority(Urgent) = %q, %v; want urgent", got, err)
	}
	if _, err := ParsePriority("critical"); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("ParsePriority(critical) error = %v, want ErrInvalidPriority", err)
	}
}

func TestReplayStatuses(t *testing.T) {
	updates := []TaskUpdate{
		{Status: StatusAssigned},
		{Status: StatusInProgress},
		{Status: StatusCompleted},
		{Status: StatusInProgress},
		{Status: StatusCompleted},
	}
	got := ReplayStatuses(updates)
	want := []Status{StatusAssigned, StatusInProgress, StatusCompleted, StatusInProgress, StatusCompleted}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
