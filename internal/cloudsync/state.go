package cloudsync

import "time"

// State tracks the outcome of pushes to one topic.
type State struct {
	Topic      string    `json:"topic"`
	LastPush   time.Time `json:"lastPush"`
	BundleID   string    `json:"bundleId,omitempty"`
	ErrorCount int       `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`
}

// NewState creates a state for topic.
func NewState(topic string) *State {
	return &State{Topic: topic}
}

// RecordSuccess records a delivered bundle.
func (s *State) RecordSuccess(at time.Time, bundleID string) {
	s.LastPush = at
	s.BundleID = bundleID
	s.ResetErrors()
}

// RecordError records a failed attempt.
func (s *State) RecordError(errMsg string) {
	s.ErrorCount++
	s.LastError = errMsg
}

// ResetErrors clears the error state.
func (s *State) ResetErrors() {
	s.ErrorCount = 0
	s.LastError = ""
}
