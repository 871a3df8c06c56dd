package market

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Process advances an instrument's price by one turn. Implementations mutate
// the instrument's parameters in place and must draw all randomness from rng.
type Process interface {
	Name() string
	Step(in *Instrument, rng *rand.Rand)
}

const (
	ModelGBM   = "gbm"
	ModelTrend = "trend"

	// MinSoftening keeps the trend damping from collapsing to zero.
	MinSoftening = 0.1
)

// GBM is the geometric Brownian motion model:
//
//	S(t+1) = S(t) * exp((mu - sigma^2/2) dt + sigma sqrt(dt) Z)
//
// after which mu drifts upward by U[0, DriftNudge) and sigma decays by Decay.
type GBM struct {
	Dt         float64
	DriftNudge float64
	Decay      float64
}

func DefaultGBM() GBM {
	return GBM{Dt: 1.0 / 180.0, DriftNudge: 0.25, Decay: 0.98}
}

func (GBM) Name() string { return ModelGBM }

func (g GBM) Step(in *Instrument, rng *rand.Rand) {
	if g.Dt <= 0 {
		g = DefaultGBM()
	}
	z := rng.NormFloat64()
	sigma := in.volatility
	in.price *= math.Exp((in.drift-0.5*sigma*sigma)*g.Dt + sigma*math.Sqrt(g.Dt)*z)
	in.drift += rng.Float64() * g.DriftNudge
	in.volatility *= g.Decay
}

// TrendWalk draws |trend|+1 normal samples around the next expected price and
// keeps the max when trend > 0, the min otherwise ("advantage/disadvantage"
// rolls). Drift and volatility are rates on the same scale as GBM, applied
// relative to the current price, so one event catalog moves both models
// alike. A trend redraw nudges drift and volatility by the softening factor.
type TrendWalk struct {
	Dt              float64
	TrendChance     float64
	ResetChance     float64
	MaxTrend        int
	TrendDrift      float64
	VolatilityStep  int
	SofteningJitter float64
}

func DefaultTrendWalk() TrendWalk {
	return TrendWalk{
		Dt:              1.0 / 180.0,
		TrendChance:     0.10,
		ResetChance:     2.0 / 11.0,
		MaxTrend:        3,
		TrendDrift:      0.1,
		VolatilityStep:  5,
		SofteningJitter: 0.1,
	}
}

func (TrendWalk) Name() string { return ModelTrend }

func (t TrendWalk) Step(in *Instrument, rng *rand.Rand) {
	if t.MaxTrend <= 0 {
		t = DefaultTrendWalk()
	}
	dt := t.Dt
	if dt <= 0 {
		dt = DefaultTrendWalk().Dt
	}
	if rng.Float64() < t.TrendChance {
		in.trend = rng.Intn(2*t.MaxTrend+1) - t.MaxTrend
		in.drift += float64(in.trend) * in.softening * t.TrendDrift
		step := float64(rng.Intn(2*t.VolatilityStep+1) - t.VolatilityStep)
		in.volatility *= math.Max(1+0.1*in.softening*step, 0.5)
		in.softening = math.Max(in.softening+rng.NormFloat64()*t.SofteningJitter, MinSoftening)
	}

	center := in.price * math.Exp(in.drift*dt)
	spread := in.price * math.Abs(in.volatility) * math.Sqrt(dt)
	draws := absInt(in.trend) + 1
	next := center + spread*rng.NormFloat64()
	for i := 1; i < draws; i++ {
		v := center + spread*rng.NormFloat64()
		if in.trend > 0 {
			next = math.Max(next, v)
		} else {
			next = math.Min(next, v)
		}
	}
	in.price = next

	if rng.Float64() < t.ResetChance {
		in.trend = 0
	}
}

// ProcessFor maps a model name to its default process.
func ProcessFor(model string) (Process, error) {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "", ModelGBM:
		return DefaultGBM(), nil
	case ModelTrend:
		return DefaultTrendWalk(), nil
	default:
		return nil, fmt.Errorf("unknown price model %q", model)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
