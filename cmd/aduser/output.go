package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	userapp "github.com/lllypuk/aduser/internal/application/user"
	domainuser "github.com/lllypuk/aduser/internal/domain/user"
)

// Output formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// resultView is the printable form of an update result.
type resultView struct {
	Identity string           `json:"identity" yaml:"identity"`
	State    userapp.State    `json:"state" yaml:"state"`
	Action   string           `json:"action,omitempty" yaml:"action,omitempty"`
	Fields   []string         `json:"fields,omitempty" yaml:"fields,omitempty"`
	User     *domainuser.User `json:"user,omitempty" yaml:"user,omitempty"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
}

func newResultView(result userapp.Result, err error) resultView {
	view := resultView{
		Identity: result.Identity,
		State:    result.State,
		Action:   result.Action,
		Fields:   result.Fields,
		User:     result.Value,
	}
	if err != nil {
		view.State = userapp.StateFailed
		view.Error = err.Error()
	}
	return view
}

func validateFormat(format string) error {
	switch strings.ToLower(format) {
	case formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q: must be json or yaml", format)
	}
}

func writeOutput(w io.Writer, format string, v any) error {
	if strings.EqualFold(format, formatYAML) {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
