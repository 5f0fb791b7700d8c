package tiktok

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// PacingConfig describes the Gaussian inter-request delay.
type PacingConfig struct {
	Mean   time.Duration `yaml:"mean"`
	StdDev time.Duration `yaml:"stddev"`
	Min    time.Duration `yaml:"min"`
	Max    time.Duration `yaml:"max"`
}

// HTTPPacing is the default for plain HTTP fetching.
var HTTPPacing = PacingConfig{
	Mean:   2000 * time.Millisecond,
	StdDev: 500 * time.Millisecond,
	Min:    500 * time.Millisecond,
	Max:    5000 * time.Millisecond,
}

// RenderPacing is the default for the headless-browser transport, which is
// slower and more conspicuous per request.
var RenderPacing = PacingConfig{
	Mean:   2500 * time.Millisecond,
	StdDev: 800 * time.Millisecond,
	Min:    1000 * time.Millisecond,
	Max:    6000 * time.Millisecond,
}

// Pacer spaces out requests with a clamped normal delay.
type Pacer struct {
	cfg   PacingConfig
	rand  Random
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewPacer returns a Pacer. A nil r uses a randomly seeded PCG source.
func NewPacer(cfg PacingConfig, r Random) *Pacer {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Pacer{cfg: cfg, rand: r, now: time.Now, sleep: sleepContext}
}

// NextDelay samples one delay via the Box-Muller transform and clamps it to
// [Min, Max], rounded to the millisecond.
func (p *Pacer) NextDelay() time.Duration {
	u1 := p.rand.Float64()
	for u1 == 0 {
		u1 = p.rand.Float64()
	}
	u2 := p.rand.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

	ms := float64(p.cfg.Mean.Milliseconds()) + z*float64(p.cfg.StdDev.Milliseconds())
	d := time.Duration(math.Round(ms)) * time.Millisecond
	return min(max(d, p.cfg.Min), p.cfg.Max)
}

// Wait blocks until a freshly sampled delay has passed since last. Time
// already spent since last counts toward it, so slow round-trips are not
// penalised twice. A zero last means there was no previous request.
func (p *Pacer) Wait(ctx context.Context, last time.Time) (time.Duration, error) {
	if last.IsZero() {
		return 0, nil
	}
	target := p.NextDelay()
	remaining := target - p.now().Sub(last)
	if remaining <= 0 {
		return 0, nil
	}
	if err := p.sleep(ctx, remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
