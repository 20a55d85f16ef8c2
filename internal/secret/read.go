package secret

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when an interactive prompt is requested without a terminal.
var ErrNotTerminal = errors.New("input is not a terminal")

// maxSecretBytes caps how much is read from a non-interactive source.
const maxSecretBytes = 4096

// ReadFrom reads a single line from r and seals it. Trailing CR/LF are dropped.
func ReadFrom(r io.Reader) (*Protected, error) {
	reader := bufio.NewReaderSize(io.LimitReader(r, maxSecretBytes), maxSecretBytes)
	line, err := reader.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		clear(line)
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}

	return New(line)
}

// ReadFromTerminal prints prompt to out and reads a secret from the terminal
// attached to in without echoing it.
func ReadFromTerminal(in *os.File, out io.Writer, prompt string) (*Protected, error) {
	fd := int(in.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	if _, err := fmt.Fprint(out, prompt); err != nil {
		return nil, fmt.Errorf("failed to write prompt: %w", err)
	}

	raw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(out)
	if err != nil {
		clear(raw)
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	return New(raw)
}
