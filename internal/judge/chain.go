package judge

import (
	"context"
	"strings"
)

type judgeChain struct {
	primary  Judge
	fallback Judge
}

// WithFallback returns a judge that first tries the primary backend and
// falls back to the provided judge when the primary is unavailable or
// produces an unusable response. ID and weight come from whichever member
// is enabled, primary preferred.
func WithFallback(primary, fallback Judge) Judge {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &judgeChain{primary: primary, fallback: fallback}
}

func (c *judgeChain) active() Judge {
	if c.primary != nil && c.primary.Enabled() {
		return c.primary
	}
	return c.fallback
}

func (c *judgeChain) ID() string {
	return c.active().ID()
}

func (c *judgeChain) Weight() float64 {
	return c.active().Weight()
}

func (c *judgeChain) Enabled() bool {
	if c == nil {
		return false
	}
	if c.primary != nil && c.primary.Enabled() {
		return true
	}
	return c.fallback != nil && c.fallback.Enabled()
}

func (c *judgeChain) Evaluate(ctx context.Context, sample Sample) (Response, error) {
	if c == nil {
		return Response{}, ErrDisabled
	}
	if c.primary != nil && c.primary.Enabled() {
		if resp, err := c.primary.Evaluate(ctx, sample); err == nil && strings.TrimSpace(resp.Text) != "" {
			return resp, nil
		}
	}
	if c.fallback != nil && c.fallback.Enabled() {
		return c.fallback.Evaluate(ctx, sample)
	}
	return Response{}, ErrDisabled
}
