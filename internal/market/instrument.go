package market

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

// Prices are clamped into [MinPrice, MaxPrice] after every mutation.
const (
	MinPrice = 0.01
	MaxPrice = 1e12
)

// Param names a mutable process parameter of an instrument.
type Param string

const (
	ParamPrice      Param = "price"
	ParamDrift      Param = "drift"
	ParamVolatility Param = "volatility"
)

// Op is the arithmetic applied by an effect.
type Op string

const (
	OpSet      Op = "set"
	OpAdd      Op = "add"
	OpMultiply Op = "multiply"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrUnknownParam  = errors.New("unknown effect parameter")
	ErrUnknownOp     = errors.New("unknown effect operation")
	ErrDuplicate     = errors.New("duplicate symbol")
	ErrInvalidPrice  = errors.New("seed price must be > 0")
	ErrBadSymbol     = errors.New("symbol must be 2-6 letters")
)

var symbolRE = regexp.MustCompile(`^[A-Z]{2,6}$`)

// ValidSymbol reports whether symbol, already upper-cased, can be listed and
// traded.
func ValidSymbol(symbol string) bool {
	return symbolRE.MatchString(symbol)
}

func ParseParam(s string) (Param, error) {
	p := Param(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ParamPrice, ParamDrift, ParamVolatility:
		return p, nil
	case "mu", "mean":
		return ParamDrift, nil
	case "sigma":
		return ParamVolatility, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownParam, s)
}

func ParseOp(s string) (Op, error) {
	o := Op(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case OpSet, OpAdd, OpMultiply:
		return o, nil
	case "mul":
		return OpMultiply, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// InstrumentConfig seeds one instrument.
type InstrumentConfig struct {
	Symbol     string  `yaml:"symbol" json:"symbol"`
	Name       string  `yaml:"name" json:"name"`
	Sector     string  `yaml:"sector" json:"sector"`
	Price      float64 `yaml:"price" json:"price"`
	Drift      float64 `yaml:"drift" json:"drift"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
	Trend      int     `yaml:"trend" json:"trend"`
	Softening  float64 `yaml:"softening" json:"softening"`
	Model      string  `yaml:"model" json:"model"`
}

// Instrument holds the process state of a single stock. It is not safe for
// concurrent use; Market callers serialize access.
type Instrument struct {
	Symbol string
	Name   string
	Sector string

	price      float64
	drift      float64
	volatility float64
	trend      int
	softening  float64
	history    []float64

	process Process
}

// NewInstrument validates cfg and seeds the history with the starting price.
func NewInstrument(cfg InstrumentConfig, process Process) (*Instrument, error) {
	symbol := strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	if !ValidSymbol(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrBadSymbol, cfg.Symbol)
	}
	if cfg.Price <= 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrInvalidPrice)
	}
	if process == nil {
		process = DefaultGBM()
	}
	softening := cfg.Softening
	if softening < MinSoftening {
		softening = MinSoftening
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = symbol
	}
	return &Instrument{
		Symbol:     symbol,
		Name:       name,
		Sector:     strings.ToLower(strings.TrimSpace(cfg.Sector)),
		price:      cfg.Price,
		drift:      cfg.Drift,
		volatility: cfg.Volatility,
		trend:      cfg.Trend,
		softening:  softening,
		history:    []float64{cfg.Price},
		process:    process,
	}, nil
}

func (in *Instrument) Price() float64      { return in.price }
func (in *Instrument) Drift() float64      { return in.drift }
func (in *Instrument) Volatility() float64 { return in.volatility }
func (in *Instrument) Trend() int          { return in.trend }
func (in *Instrument) Softening() float64  { return in.softening }
func (in *Instrument) Model() string       { return in.process.Name() }

// History returns a copy of the recorded prices, oldest first.
func (in *Instrument) History() []float64 {
	out := make([]float64, len(in.history))
	copy(out, in.history)
	return out
}

// ApplyEffect performs op on param. Set/Add/Multiply are exact; only the
// price is clamped afterwards.
func (in *Instrument) ApplyEffect(param Param, op Op, amount float64) error {
	var target *float64
	switch param {
	case ParamPrice:
		target = &in.price
	case ParamDrift:
		target = &in.drift
	case ParamVolatility:
		target = &in.volatility
	default:
		return fmt.Errorf("%s: %w: %q", in.Symbol, ErrUnknownParam, param)
	}
	switch op {
	case OpSet:
		*target = amount
	case OpAdd:
		*target += amount
	case OpMultiply:
		*target *= amount
	default:
		return fmt.Errorf("%s: %w: %q", in.Symbol, ErrUnknownOp, op)
	}
	in.price = clampPrice(in.price)
	return nil
}

// Advance runs one turn of the instrument's process and records the result.
func (in *Instrument) Advance(rng *rand.Rand) {
	in.process.Step(in, rng)
	in.price = clampPrice(in.price)
	in.history = append(in.history, in.price)
}

// View is a detached copy of an instrument's observable state.
type View struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Sector     string  `json:"sector"`
	Model      string  `json:"model"`
	Price      float64 `json:"price"`
	Drift      float64 `json:"drift"`
	Volatility float64 `json:"volatility"`
	Trend      int     `json:"trend"`
	Softening  float64 `json:"softening"`
}

func (in *Instrument) View() View {
	return View{
		Symbol:     in.Symbol,
		Name:       in.Name,
		Sector:     in.Sector,
		Model:      in.process.Name(),
		Price:      in.price,
		Drift:      in.drift,
		Volatility: in.volatility,
		Trend:      in.trend,
		Softening:  in.softening,
	}
}

func clampPrice(p float64) float64 {
	switch {
	case p > MaxPrice:
		return MaxPrice
	case p >= MinPrice:
		return p
	default:
		// also catches NaN
		return MinPrice
	}
}
