package appcore

import (
	"context"
	"fmt"
)

// BaseUseCase is embedded by use cases for the checks every Execute starts with.
type BaseUseCase struct{}

// ValidateContext fails fast when ctx is already done, so no confirmation is
// asked and nothing is sent for an abandoned invocation.
func (b *BaseUseCase) ValidateContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("invocation abandoned: %w", err)
	}
	return nil
}
