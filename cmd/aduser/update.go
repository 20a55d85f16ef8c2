package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	osuser "os/user"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	userapp "github.com/lllypuk/aduser/internal/application/user"
	domainuser "github.com/lllypuk/aduser/internal/domain/user"
	"github.com/lllypuk/aduser/internal/secret"
)

// Invocation sources recorded in audit entries.
const (
	sourceCLI   = "cli"
	sourceBatch = "batch"
)

// maxRecordBytes caps a user record read from stdin.
const maxRecordBytes = 1 << 20

var identityFlags = []string{"upn-or-object-id", "upn", "object-id", "input-object", "input-file"}

var errStdinNeedsYes = errors.New("--yes or --what-if is required when stdin carries input")

type updateOptions struct {
	upnOrObjectID string
	upn           string
	objectID      string
	inputObject   string
	inputFile     string

	enableAccount bool
	displayName   string
	immutableID   string
	usageLocation string
	givenName     string
	surname       string
	userType      string
	mailNickname  string

	passwordStdin  bool
	promptPassword bool
	forceChange    bool

	yes    bool
	whatIf bool
	output string
}

func newUpdateCommand(a *app) *cobra.Command {
	opts := &updateOptions{}

	cmd := &cobra.Command{
		Use:     "update",
		Aliases: []string{"set"},
		Short:   "Update properties of an existing directory user",
		Long: `Update properties of an existing directory user.

Only the attributes given on the command line are sent; an attribute given
with an empty value is sent as empty. Without --yes the change is confirmed
interactively and a declined prompt changes nothing.`,
		Example: `  aduser update --upn jane@contoso.com --usage-location US --given-name Jane
  aduser update --object-id 11111111-1111-1111-1111-111111111111 --enable-account=false --yes
  echo 'N3wP@ss' | aduser update --upn jane@contoso.com --password-stdin --force-change-password-next-login --yes
  aduser update --input-file users.yaml --what-if`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runUpdate(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.upnOrObjectID, "upn-or-object-id", "", "user principal name or object id")
	flags.StringVar(&opts.upn, "upn", "", "user principal name")
	flags.StringVar(&opts.objectID, "object-id", "", "object id (GUID)")
	flags.StringVar(&opts.inputObject, "input-object", "", "user record as JSON, or - to read it from stdin")
	flags.StringVarP(&opts.inputFile, "input-file", "f", "", "YAML or JSON list of updates, or - for stdin")

	flags.BoolVar(&opts.enableAccount, "enable-account", false, "enable or disable sign-in")
	flags.StringVar(&opts.displayName, "display-name", "", "display name")
	flags.StringVar(&opts.immutableID, "immutable-id", "", "on-premises immutable id")
	flags.StringVar(&opts.usageLocation, "usage-location", "", "two-letter usage location")
	flags.StringVar(&opts.givenName, "given-name", "", "given name")
	flags.StringVar(&opts.surname, "surname", "", "surname")
	flags.StringVar(&opts.userType, "user-type", "", "user type (Member or Guest)")
	flags.StringVar(&opts.mailNickname, "mail-nickname", "", "mail alias")

	flags.BoolVar(&opts.passwordStdin, "password-stdin", false, "read the new password from stdin")
	flags.BoolVar(&opts.promptPassword, "prompt-password", false, "prompt for the new password")
	flags.BoolVar(&opts.forceChange, "force-change-password-next-login", false,
		"require a password change at next sign-in (ignored without a password)")

	flags.BoolVarP(&opts.yes, "yes", "y", false, "skip the confirmation prompt")
	flags.BoolVar(&opts.whatIf, "what-if", false, "show what would change without sending it")
	flags.StringVarP(&opts.output, "output", "o", formatJSON, "output format (json, yaml)")

	cmd.MarkFlagsMutuallyExclusive(identityFlags...)
	cmd.MarkFlagsOneRequired(identityFlags...)
	cmd.MarkFlagsMutuallyExclusive("password-stdin", "prompt-password")
	cmd.MarkFlagsMutuallyExclusive("password-stdin", "input-file")
	cmd.MarkFlagsMutuallyExclusive("prompt-password", "input-file")

	return cmd
}

func (a *app) runUpdate(cmd *cobra.Command, opts *updateOptions) error {
	if err := validateFormat(opts.output); err != nil {
		return err
	}
	if opts.readsStdin() && !opts.yes && !opts.whatIf {
		return errStdinNeedsYes
	}
	if opts.passwordStdin && opts.inputObject == "-" {
		return errors.New("--password-stdin cannot be combined with --input-object -")
	}

	if opts.inputFile != "" {
		if changed := changedAttributeFlags(cmd); len(changed) > 0 {
			return fmt.Errorf("--input-file cannot be combined with --%s", strings.Join(changed, ", --"))
		}
		return a.runBatch(cmd.Context(), opts)
	}

	identity, err := opts.identity(cmd, a.in)
	if err != nil {
		return err
	}

	command := userapp.UpdateUserCommand{
		Identity:            identity,
		AccountEnabled:      boolFlag(cmd, "enable-account", opts.enableAccount),
		DisplayName:         stringFlag(cmd, "display-name", opts.displayName).Ptr(),
		Attributes:          opts.attributes(cmd),
		ForceChangePassword: opts.forceChange,
		WhatIf:              opts.whatIf,
		Actor:               currentActor(),
		Source:              sourceCLI,
	}

	password, err := a.readPassword(opts)
	if err != nil {
		return err
	}
	if password != nil {
		defer password.Destroy()
		command.Password = password
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

	result, err := container.UpdateUseCase(a.confirmer(opts)).Execute(ctx, command)
	if err != nil {
		return err
	}

	switch result.State {
	case userapp.StateAborted:
		return nil
	case userapp.StateSubmitted:
		return writeOutput(a.out, opts.output, result.Value)
	default:
		return writeOutput(a.out, opts.output, newResultView(result, nil))
	}
}

func (a *app) confirmer(opts *updateOptions) userapp.Confirmer {
	if opts.yes {
		return userapp.AutoApprove
	}
	return newPromptConfirmer(a.in, a.errOut)
}

func (a *app) readPassword(opts *updateOptions) (*secret.Protected, error) {
	switch {
	case opts.passwordStdin:
		return secret.ReadFrom(a.in)
	case opts.promptPassword:
		f, ok := a.in.(*os.File)
		if !ok {
			return nil, secret.ErrNotTerminal
		}
		return secret.ReadFromTerminal(f, a.errOut, "New password: ")
	default:
		return nil, nil //nolint:nilnil // no password requested
	}
}

func (o *updateOptions) readsStdin() bool {
	return o.passwordStdin || o.inputObject == "-" || o.inputFile == "-"
}

func (o *updateOptions) identity(cmd *cobra.Command, in io.Reader) (domainuser.Identity, error) {
	flags := cmd.Flags()

	switch {
	case flags.Changed("upn-or-object-id"):
		return domainuser.ByUPNOrObjectID{Value: o.upnOrObjectID}, nil
	case flags.Changed("upn"):
		return domainuser.ByUserPrincipalName{UPN: o.upn}, nil
	case flags.Changed("object-id"):
		id, err := uuid.Parse(o.objectID)
		if err != nil {
			return nil, fmt.Errorf("invalid --object-id %q: %w", o.objectID, err)
		}
		return domainuser.ByObjectID{ID: id}, nil
	case flags.Changed("input-object"):
		record, err := readRecord(o.inputObject, in)
		if err != nil {
			return nil, err
		}
		return domainuser.ByRecord{Record: record}, nil
	default:
		return nil, userapp.ErrIdentityRequired
	}
}

func (o *updateOptions) attributes(cmd *cobra.Command) domainuser.Attributes {
	return domainuser.Attributes{
		ImmutableID:   stringFlag(cmd, "immutable-id", o.immutableID),
		UsageLocation: stringFlag(cmd, "usage-location", o.usageLocation),
		GivenName:     stringFlag(cmd, "given-name", o.givenName),
		Surname:       stringFlag(cmd, "surname", o.surname),
		UserType:      stringFlag(cmd, "user-type", o.userType),
		MailNickname:  stringFlag(cmd, "mail-nickname", o.mailNickname),
	}
}

var attributeFlags = []string{
	"enable-account", "display-name", "immutable-id", "usage-location",
	"given-name", "surname", "user-type", "mail-nickname", "force-change-password-next-login",
}

func changedAttributeFlags(cmd *cobra.Command) []string {
	var changed []string
	for _, name := range attributeFlags {
		if cmd.Flags().Changed(name) {
			changed = append(changed, name)
		}
	}
	return changed
}

// stringFlag is set only when the flag was given, even with an empty value.
func stringFlag(cmd *cobra.Command, name, value string) domainuser.Optional[string] {
	if !cmd.Flags().Changed(name) {
		return domainuser.None[string]()
	}
	return domainuser.Some(value)
}

func boolFlag(cmd *cobra.Command, name string, value bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

// readRecord decodes a user record given inline or, for "-", from in.
func readRecord(value string, in io.Reader) (*domainuser.User, error) {
	raw := []byte(value)
	if value == "-" {
		var err error
		raw, err = io.ReadAll(io.LimitReader(in, maxRecordBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read user record: %w", err)
		}
	}

	var record domainuser.User
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("invalid user record: %w", err)
	}
	return &record, nil
}

func currentActor() string {
	u, err := osuser.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

// executeOne runs a single command and returns the printable result.
func executeOne(ctx context.Context, uc *userapp.UpdateUserUseCase, command userapp.UpdateUserCommand) resultView {
	result, err := uc.Execute(ctx, command)
	return newResultView(result, err)
}
