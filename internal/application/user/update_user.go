package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lllypuk/aduser/internal/application/appcore"
	domainuser "github.com/lllypuk/aduser/internal/domain/user"
)

// ActionFormat describes the update shown to the confirmer.
const ActionFormat = "updating properties for user with identity '%s'"

// UpdateUserUseCase resolves the identity, builds the sparse update, asks for
// confirmation and submits it to the directory.
type UpdateUserUseCase struct {
	appcore.BaseUseCase

	directory DirectoryClient
	confirmer Confirmer
	audit     AuditRecorder
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// UpdateUserOption configures UpdateUserUseCase.
type UpdateUserOption func(*UpdateUserUseCase)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) UpdateUserOption {
	return func(uc *UpdateUserUseCase) {
		uc.logger = logger
	}
}

// WithAuditRecorder records every submitted update.
func WithAuditRecorder(audit AuditRecorder) UpdateUserOption {
	return func(uc *UpdateUserUseCase) {
		uc.audit = audit
	}
}

// WithMetrics reports update outcomes.
func WithMetrics(metrics Metrics) UpdateUserOption {
	return func(uc *UpdateUserUseCase) {
		uc.metrics = metrics
	}
}

// WithClock overrides the time source used for audit timestamps.
func WithClock(now func() time.Time) UpdateUserOption {
	return func(uc *UpdateUserUseCase) {
		uc.now = now
	}
}

// NewUpdateUserUseCase creates a new UpdateUserUseCase
func NewUpdateUserUseCase(
	directory DirectoryClient,
	confirmer Confirmer,
	opts ...UpdateUserOption,
) *UpdateUserUseCase {
	if confirmer == nil {
		confirmer = AutoApprove
	}

	uc := &UpdateUserUseCase{
		directory: directory,
		confirmer: confirmer,
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Execute runs a single update. A refused confirmation is not an error: the
// result is StateAborted and nothing is sent. Errors from the secret and from
// the directory are returned unchanged.
func (uc *UpdateUserUseCase) Execute(ctx context.Context, cmd UpdateUserCommand) (Result, error) {
	if err := uc.ValidateContext(ctx); err != nil {
		return Result{}, err
	}
	if cmd.Identity == nil {
		return Result{}, ErrIdentityRequired
	}

	start := time.Now()
	identity := domainuser.Resolve(cmd.Identity)

	payload, err := domainuser.BuildPayload(cmd.AccountEnabled, cmd.DisplayName, cmd.Attributes, cmd.passwordChange())
	if err != nil {
		uc.observe(OutcomeSecretError, start)
		return Result{State: StatePending, Identity: identity}, err
	}
	defer payload.Wipe()

	result := Result{
		State:    StatePending,
		Identity: identity,
		Action:   fmt.Sprintf(ActionFormat, identity),
		Fields:   payload.Fields(),
	}

	uc.logger.DebugContext(ctx, "user update prepared",
		slog.String("identity", identity),
		slog.Any("fields", result.Fields),
	)

	if cmd.WhatIf {
		result.State = StateWhatIf
		uc.observe(OutcomeWhatIf, start)
		return result, nil
	}

	approved, err := uc.confirmer.Confirm(ctx, identity, result.Action)
	if err != nil {
		uc.observe(OutcomeFailed, start)
		return result, fmt.Errorf("%w: %w", ErrConfirmationFailed, err)
	}
	if !approved {
		uc.logger.InfoContext(ctx, "user update declined", slog.String("identity", identity))
		result.State = StateAborted
		uc.observe(OutcomeAborted, start)
		return result, nil
	}
	result.State = StateConfirmed

	updated, err := uc.directory.UpdateUser(ctx, identity, payload)
	uc.record(ctx, cmd, identity, payload, err)
	if err != nil {
		uc.logger.WarnContext(ctx, "user update failed",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		result.State = StateFailed
		result.Error = err
		uc.observe(OutcomeFailed, start)
		return result, err
	}

	uc.logger.InfoContext(ctx, "user updated",
		slog.String("identity", identity),
		slog.Any("fields", result.Fields),
	)

	result.State = StateSubmitted
	result.Value = updated
	uc.observe(OutcomeSubmitted, start)
	return result, nil
}

func (uc *UpdateUserUseCase) observe(outcome string, start time.Time) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.ObserveUpdate(outcome, time.Since(start))
}

// record writes the audit entry. Audit failures are logged and never fail the update.
func (uc *UpdateUserUseCase) record(
	ctx context.Context,
	cmd UpdateUserCommand,
	identity string,
	payload *domainuser.UpdatePayload,
	updateErr error,
) {
	if uc.audit == nil {
		return
	}

	entry := AuditEntry{
		Identity:        identity,
		Fields:          payload.Fields(),
		PasswordChanged: payload.HasPassword(),
		ForceChange:     payload.HasPassword() && payload.PasswordProfile.ForceChangePasswordNextLogin,
		Outcome:         OutcomeSubmitted,
		Actor:           cmd.Actor,
		Source:          cmd.Source,
		RecordedAt:      uc.now().UTC(),
	}
	if updateErr != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = updateErr.Error()
	}

	if err := uc.audit.Record(ctx, entry); err != nil {
		uc.logger.ErrorContext(ctx, "failed to record audit entry",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
	}
}
