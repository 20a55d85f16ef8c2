package user

import (
	"context"
	"time"

	domainuser "github.com/lllypuk/aduser/internal/domain/user"
)

// DirectoryClient submits updates to the directory service.
// Interface declared on the consumer side (application layer).
type DirectoryClient interface {
	// UpdateUser applies payload to the user addressed by identity and returns
	// the updated record.
	UpdateUser(ctx context.Context, identity string, payload *domainuser.UpdatePayload) (*domainuser.User, error)
}

// Confirmer approves or refuses a mutating action.
type Confirmer interface {
	// Confirm asks whether action may be performed on target.
	Confirm(ctx context.Context, target, action string) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, target, action string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, target, action string) (bool, error) {
	return f(ctx, target, action)
}

// AutoApprove approves every action.
var AutoApprove Confirmer = ConfirmerFunc(func(context.Context, string, string) (bool, error) {
	return true, nil
})

// AuditEntry describes one submitted update. It never carries attribute values.
type AuditEntry struct {
	Identity        string
	Fields          []string
	PasswordChanged bool
	ForceChange     bool
	Outcome         string
	Error           string
	Actor           string
	Source          string
	RecordedAt      time.Time
}

// AuditRecorder stores audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Metrics observes update outcomes.
type Metrics interface {
	ObserveUpdate(outcome string, duration time.Duration)
}
