package models

import "time"

// TriggerEvent describes the push that caused a run: which ref moved and to
// which commit. Events are created by the triggering side (webhook, schedule,
// queue) and never mutated afterwards.
type TriggerEvent struct {
	Ref        string    `json:"ref"        validate:"required"`
	Commit     string    `json:"commit"     validate:"required"`
	Source     string    `json:"source,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewTriggerEvent builds a push event for the given ref and commit. An empty
// commit resolves to FETCH_HEAD, the head of the fetched ref at checkout time.
func NewTriggerEvent(ref, commit, source string) TriggerEvent {
	if commit == "" {
		commit = "FETCH_HEAD"
	}

	return TriggerEvent{
		Ref:        ref,
		Commit:     commit,
		Source:     source,
		ReceivedAt: time.Now().UTC(),
	}
}
