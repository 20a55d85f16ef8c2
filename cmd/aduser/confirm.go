package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// promptConfirmer asks on out and reads the answer from in. Prompts are
// serialized so concurrent batch items never interleave.
type promptConfirmer struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm implements userapp.Confirmer. Anything but y/yes declines.
func (p *promptConfirmer) Confirm(ctx context.Context, target, action string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := fmt.Fprintf(p.out,
		"\nConfirm\nAre you sure you want to perform this action?\n"+
			"Performing the operation %q on target %q.\n"+
			"[Y] Yes  [N] No  (default is \"N\"): ",
		action, target)
	if err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
