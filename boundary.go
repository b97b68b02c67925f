package raspberrysensor

import "context"

// Boundary is the hardware-access layer: it physically performs one read of
// a channel. Implementations are only ever called from a Bus worker, one
// call at a time.
type Boundary interface {
	TriggerRead(ctx context.Context, ch Channel) (Reading, error)
}

// BoundaryFunc adapts a function to a Boundary.
type BoundaryFunc func(ctx context.Context, ch Channel) (Reading, error)

func (f BoundaryFunc) TriggerRead(ctx context.Context, ch Channel) (Reading, error) {
	return f(ctx, ch)
}
