package repository

import (
	"context"
	"time"
)

// DefaultWriteTimeout bounds a single INSERT.
const DefaultWriteTimeout = 10 * time.Second

// WithWriteTimeout returns ctx bounded by DefaultWriteTimeout. A caller
// deadline that is already sooner is kept as is.
func WithWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < DefaultWriteTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultWriteTimeout)
}
