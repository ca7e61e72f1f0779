package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate enforces a minimum interval between outgoing requests across all
// callers sharing it.
type Gate struct {
	next    Generator
	limiter *rate.Limiter
}

// NewGate wraps next so that at most requestsPerMinute calls start per
// minute. A non-positive rate disables the gate.
func NewGate(next Generator, requestsPerMinute int) *Gate {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &Gate{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (g *Gate) Name() string {
	return g.next.Name()
}

func (g *Gate) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return g.next.Generate(ctx, prompt, opts)
}
