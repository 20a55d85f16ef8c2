package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	userapp "github.com/lllypuk/aduser/internal/application/user"
	domainuser "github.com/lllypuk/aduser/internal/domain/user"
	"github.com/lllypuk/aduser/internal/secret"
)

// Batch file errors.
var (
	errBatchEmpty    = errors.New("batch file contains no updates")
	errBatchIdentity = errors.New("exactly one of upn_or_object_id, upn, object_id or input_object is required")
)

// batchEntry is one update in a batch file. Attribute keys that are absent or
// null are not sent; a key with an empty string is sent as empty.
type batchEntry struct {
	UPNOrObjectID string           `yaml:"upn_or_object_id"`
	UPN           string           `yaml:"upn"`
	ObjectID      string           `yaml:"object_id"`
	InputObject   *domainuser.User `yaml:"input_object"`

	AccountEnabled *bool   `yaml:"account_enabled"`
	DisplayName    *string `yaml:"display_name"`
	ImmutableID    *string `yaml:"immutable_id"`
	UsageLocation  *string `yaml:"usage_location"`
	GivenName      *string `yaml:"given_name"`
	Surname        *string `yaml:"surname"`
	UserType       *string `yaml:"user_type"`
	MailNickname   *string `yaml:"mail_nickname"`

	Password                     *sealedSecret `yaml:"password"`
	ForceChangePasswordNextLogin bool          `yaml:"force_change_password_next_login"`
}

// sealedSecret seals a password as soon as it is decoded from the batch file.
type sealedSecret struct {
	*secret.Protected
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *sealedSecret) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.New("password must be a string")
	}
	protected, err := secret.FromString(node.Value)
	node.Value = ""
	if err != nil {
		return err
	}
	s.Protected = protected
	return nil
}

func (e *batchEntry) identity() (domainuser.Identity, error) {
	var ids []domainuser.Identity

	if e.UPNOrObjectID != "" {
		ids = append(ids, domainuser.ByUPNOrObjectID{Value: e.UPNOrObjectID})
	}
	if e.UPN != "" {
		ids = append(ids, domainuser.ByUserPrincipalName{UPN: e.UPN})
	}
	if e.ObjectID != "" {
		id, err := uuid.Parse(e.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("invalid object_id %q: %w", e.ObjectID, err)
		}
		ids = append(ids, domainuser.ByObjectID{ID: id})
	}
	if e.InputObject != nil {
		ids = append(ids, domainuser.ByRecord{Record: e.InputObject})
	}

	if len(ids) != 1 {
		return nil, errBatchIdentity
	}
	return ids[0], nil
}

func (e *batchEntry) command(whatIf bool) (userapp.UpdateUserCommand, error) {
	identity, err := e.identity()
	if err != nil {
		return userapp.UpdateUserCommand{}, err
	}

	command := userapp.UpdateUserCommand{
		Identity:       identity,
		AccountEnabled: e.AccountEnabled,
		DisplayName:    e.DisplayName,
		Attributes: domainuser.Attributes{
			ImmutableID:   domainuser.FromPtr(e.ImmutableID),
			UsageLocation: domainuser.FromPtr(e.UsageLocation),
			GivenName:     domainuser.FromPtr(e.GivenName),
			Surname:       domainuser.FromPtr(e.Surname),
			UserType:      domainuser.FromPtr(e.UserType),
			MailNickname:  domainuser.FromPtr(e.MailNickname),
		},
		ForceChangePassword: e.ForceChangePasswordNextLogin,
		WhatIf:              whatIf,
		Actor:               currentActor(),
		Source:              sourceBatch,
	}
	if e.Password != nil && e.Password.Protected != nil {
		command.Password = e.Password.Protected
	}
	return command, nil
}

func (e *batchEntry) destroy() {
	if e.Password != nil && e.Password.Protected != nil {
		e.Password.Destroy()
	}
}

// identityLabel names the entry in output when its identity is invalid.
func (e *batchEntry) identityLabel() string {
	switch {
	case e.UPNOrObjectID != "":
		return e.UPNOrObjectID
	case e.UPN != "":
		return e.UPN
	case e.ObjectID != "":
		return e.ObjectID
	case e.InputObject != nil:
		return domainuser.Resolve(domainuser.ByRecord{Record: e.InputObject})
	default:
		return ""
	}
}

// readBatch decodes a YAML (or JSON) list of updates. Unknown keys are
// rejected.
func readBatch(r io.Reader) ([]batchEntry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var entries []batchEntry
	if err := dec.Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errBatchEmpty
		}
		return nil, fmt.Errorf("invalid batch file: %w", err)
	}
	if len(entries) == 0 {
		return nil, errBatchEmpty
	}
	return entries, nil
}

func (a *app) openBatch(path string) ([]batchEntry, error) {
	if path == "-" {
		return readBatch(a.in)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()

	return readBatch(f)
}

// runBatch applies every entry of the batch file with bounded concurrency. A
// failed entry does not stop the others; the command fails when any entry
// failed.
func (a *app) runBatch(ctx context.Context, opts *updateOptions) error {
	entries, err := a.openBatch(opts.inputFile)
	if err != nil {
		return err
	}
	defer func() {
		for i := range entries {
			entries[i].destroy()
		}
	}()

	container, err := NewContainer(ctx, a.cfg, WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := container.Close(); closeErr != nil {
			a.logger.Warn("failed to close container", slog.String("error", closeErr.Error()))
		}
	}()

	uc := container.UpdateUseCase(a.confirmer(opts))
	results := make([]resultView, len(entries))

	var g errgroup.Group
	g.SetLimit(a.cfg.Batch.Concurrency)

	for i := range entries {
		g.Go(func() error {
			container.Metrics.BatchInFlight.Inc()
			defer container.Metrics.BatchInFlight.Dec()

			command, cmdErr := entries[i].command(opts.whatIf)
			if cmdErr != nil {
				results[i] = resultView{
					Identity: entries[i].identityLabel(),
					State:    userapp.StateFailed,
					Error:    cmdErr.Error(),
				}
				return nil
			}
			results[i] = executeOne(ctx, uc, command)
			return nil
		})
	}
	_ = g.Wait()

	// declined entries leave no trace on stdout
	shown := make([]resultView, 0, len(results))
	failed, declined := 0, 0
	for _, r := range results {
		switch r.State {
		case userapp.StateAborted:
			declined++
			continue
		case userapp.StateFailed:
			failed++
		}
		shown = append(shown, r)
	}

	a.logger.InfoContext(ctx, "batch finished",
		slog.Int("total", len(results)),
		slog.Int("failed", failed),
		slog.Int("declined", declined),
	)

	if len(shown) == 0 {
		return nil
	}
	if err := writeOutput(a.out, opts.output, shown); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d updates failed", failed, len(results))
	}
	return nil
}
