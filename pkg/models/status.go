package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a benchmark trial.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusReady
	StatusRunning
	StatusSucceeded
	StatusCanceled
	StatusFailed
	StatusTimedOut
)

var statusNames = [...]string{
	StatusUnknown:   "unknown",
	StatusPending:   "pending",
	StatusReady:     "ready",
	StatusRunning:   "running",
	StatusSucceeded: "succeeded",
	StatusCanceled:  "canceled",
	StatusFailed:    "failed",
	StatusTimedOut:  "timed_out",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus parses a lowercase status name. Upper case is accepted too.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status: %q", name)
}

// IsGood reports whether the trial is not in an error or canceled state.
func (s Status) IsGood() bool {
	switch s {
	case StatusCanceled, StatusFailed, StatusTimedOut:
		return false
	}
	return true
}

// IsCompleted reports whether the trial reached a final state.
func (s Status) IsCompleted() bool {
	switch s {
	case StatusSucceeded, StatusCanceled, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

func (s Status) IsPending() bool   { return s == StatusPending }
func (s Status) IsReady() bool     { return s == StatusReady }
func (s Status) IsSucceeded() bool { return s == StatusSucceeded }
func (s Status) IsFailed() bool    { return s == StatusFailed }

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
