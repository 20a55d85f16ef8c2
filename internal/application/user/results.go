package user

import (
	"github.com/lllypuk/aduser/internal/application/appcore"
	domainuser "github.com/lllypuk/aduser/internal/domain/user"
)

// State is where an update invocation ended.
type State string

// Update states. Pending and Confirmed are transient; an invocation ends in
// Submitted, Aborted, WhatIf or Failed.
const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateSubmitted State = "submitted"
	StateAborted   State = "aborted"
	StateWhatIf    State = "what_if"
	StateFailed    State = "failed"
)

// Outcome labels used for metrics and audit entries.
const (
	OutcomeSubmitted   = "submitted"
	OutcomeFailed      = "failed"
	OutcomeAborted     = "aborted"
	OutcomeWhatIf      = "what_if"
	OutcomeSecretError = "secret_error"
)

// Result - result of an update invocation. Value is set only when State is
// StateSubmitted.
type Result struct {
	appcore.Result[*domainuser.User]

	State    State
	Identity string
	Action   string
	Fields   []string
}
