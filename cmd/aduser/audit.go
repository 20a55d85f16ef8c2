package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	userapp "github.com/lllypuk/aduser/internal/application/user"
)

var errAuditDisabled = errors.New("audit trail is disabled: set audit.store to mongodb")

// auditView is the printable form of an audit entry.
type auditView struct {
	RecordedAt      time.Time `json:"recorded_at" yaml:"recorded_at"`
	Identity        string    `json:"identity" yaml:"identity"`
	Outcome         string    `json:"outcome" yaml:"outcome"`
	Fields          []string  `json:"fields" yaml:"fields"`
	PasswordChanged bool      `json:"password_changed" yaml:"password_changed"`
	ForceChange     bool      `json:"force_change,omitempty" yaml:"force_change,omitempty"`
	Actor           string    `json:"actor,omitempty" yaml:"actor,omitempty"`
	Source          string    `json:"source,omitempty" yaml:"source,omitempty"`
	Error           string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func newAuditView(e userapp.AuditEntry) auditView {
	return auditView{
		RecordedAt:      e.RecordedAt,
		Identity:        e.Identity,
		Outcome:         e.Outcome,
		Fields:          e.Fields,
		PasswordChanged: e.PasswordChanged,
		ForceChange:     e.ForceChange,
		Actor:           e.Actor,
		Source:          e.Source,
		Error:           e.Error,
	}
}

func newAuditCommand(a *app) *cobra.Command {
	var (
		identity string
		limit    int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded updates of a directory user, newest first",
		Example: `  aduser audit --identity jane@contoso.com
  aduser audit --identity 11111111-1111-1111-1111-111111111111 --limit 5 -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			if !a.cfg.UsesMongoDB() {
				return errAuditDisabled
			}

			ctx := cmd.Context()
			container, err := NewContainer(ctx, a.cfg, WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := container.Close(); closeErr != nil {
					a.logger.Warn("failed to close container", slog.String("error", closeErr.Error()))
				}
			}()

			entries, err := container.Audit.ListByIdentity(ctx, identity, limit)
			if err != nil {
				return err
			}

			views := make([]auditView, 0, len(entries))
			for _, e := range entries {
				views = append(views, newAuditView(e))
			}
			return writeOutput(a.out, output, views)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&identity, "identity", "", "user principal name or object id as recorded")
	flags.IntVar(&limit, "limit", 0, "maximum entries to list (default 50, at most 500)")
	flags.StringVarP(&output, "output", "o", formatJSON, "output format (json, yaml)")
	_ = cmd.MarkFlagRequired("identity")

	return cmd
}
