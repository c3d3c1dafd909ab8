package notify

import (
	"context"

	"go.uber.org/zap"
)

// Gate routes destructive actions through a Confirmer. The guarded function
// runs only on an explicit confirm.
type Gate struct {
	confirmer Confirmer
	logger    *zap.Logger
}

// NewGate returns a gate asking c.
func NewGate(c Confirmer, logger *zap.Logger) *Gate {
	if c == nil {
		c = NonInteractive{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{confirmer: c, logger: logger}
}

// Guard asks req and, on confirm, runs fn. It reports whether fn ran. A
// cancelled dialog is not an error.
func (g *Gate) Guard(ctx context.Context, req Request, fn func(context.Context) error) (bool, error) {
	ok, err := g.confirmer.Confirm(ctx, req)
	if err != nil {
		return false, err
	}
	if !ok {
		g.logger.Debug("notify: confirmation declined", zap.String("title", req.Title))
		return false, nil
	}
	return true, fn(ctx)
}
