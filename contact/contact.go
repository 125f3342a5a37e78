// Package contact validates sense and source lead continuity of a four-wire measurement.
package contact

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/logger"
)

var (
	// ErrContactFailed is returned by Result.Err when a lead is open.
	ErrContactFailed = ivierr.New("contact: check failed", ivierr.ErrDevice)
	// ErrInvalidThreshold is returned for a negative or non-finite threshold.
	ErrInvalidThreshold = ivierr.New("contact: invalid threshold", ivierr.ErrConfiguration)
	// ErrMalformedReply is returned when the lead resistance reply cannot be parsed.
	ErrMalformedReply = ivierr.New("contact: malformed resistance reply", ivierr.ErrProtocolViolation)
)

// Default instrument commands.
const (
	DefaultThresholdCommand  = ":CONT:THR %g"
	DefaultResistanceCommand = ":CONT:RES?"
)

// Outcome is the verdict of a contact check.
type Outcome int

const (
	Pass Outcome = iota
	// OpenSenseLow: the sense-low lead is open. A source-side open reads artificially
	// low resistance, so the sense-high lead still passes.
	OpenSenseLow
	// OpenSenseHigh: only the sense-high lead is open.
	OpenSenseHigh
	// OpenLeads: both sides measure above the threshold.
	OpenLeads
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case OpenSenseLow:
		return "open sense-low lead"
	case OpenSenseHigh:
		return "open sense-high lead"
	case OpenLeads:
		return "open leads"
	default:
		return "unknown"
	}
}

// Result is the outcome of Validate together with its inputs.
type Result struct {
	Outcome     Outcome
	SenseHighOK bool
	SenseLowOK  bool
	Threshold   float64
}

// Passed reports whether both leads are closed.
func (r Result) Passed() bool {
	return r.Outcome == Pass
}

// Err returns nil on pass, otherwise an error matching ErrContactFailed.
func (r Result) Err() error {
	if r.Passed() {
		return nil
	}

	return fmt.Errorf("%w: %s (threshold %g ohm)", ErrContactFailed, r.Outcome, r.Threshold)
}

func (r Result) String() string {
	return fmt.Sprintf("%s (sense-high ok=%t, sense-low ok=%t, threshold=%g)",
		r.Outcome, r.SenseHighOK, r.SenseLowOK, r.Threshold)
}

// Validate decides the outcome from the continuity of the two sense leads.
func Validate(senseHighOK, senseLowOK bool, threshold float64) Result {
	r := Result{SenseHighOK: senseHighOK, SenseLowOK: senseLowOK, Threshold: threshold}

	switch {
	case senseHighOK && senseLowOK:
		r.Outcome = Pass
	case senseHighOK:
		r.Outcome = OpenSenseLow
	case senseLowOK:
		r.Outcome = OpenSenseHigh
	default:
		r.Outcome = OpenLeads
	}

	return r
}

// Querier is the part of a session used by Checker.
type Querier interface {
	Query(command string) (string, error)
	WriteLine(command string) error
}

// Measurement holds the measured lead resistances and the verdict.
type Measurement struct {
	HighOhms float64
	LowOhms  float64
	Result   Result
}

// Checker runs a contact check on an instrument.
type Checker struct {
	q             Querier
	threshold     float64
	thresholdCmd  string
	resistanceCmd string
	logger        logger.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithCommands overrides the threshold command format (one %g verb) and the resistance query.
func WithCommands(thresholdCmd, resistanceCmd string) Option {
	return func(c *Checker) {
		if thresholdCmd != "" {
			c.thresholdCmd = thresholdCmd
		}
		if resistanceCmd != "" {
			c.resistanceCmd = resistanceCmd
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChecker creates a checker with the given resistance threshold in ohms.
func NewChecker(q Querier, threshold float64, opts ...Option) (*Checker, error) {
	if threshold < 0 || threshold != threshold || threshold > 1e12 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidThreshold, threshold)
	}

	c := &Checker{
		q:             q,
		threshold:     threshold,
		thresholdCmd:  DefaultThresholdCommand,
		resistanceCmd: DefaultResistanceCommand,
		logger:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Threshold returns the resistance threshold in ohms.
func (c *Checker) Threshold() float64 {
	return c.threshold
}

// Check programs the threshold, reads the lead resistances and validates them.
// A failed contact is not an error; inspect Measurement.Result.
func (c *Checker) Check() (Measurement, error) {
	if err := c.q.WriteLine(fmt.Sprintf(c.thresholdCmd, c.threshold)); err != nil {
		return Measurement{}, err
	}

	reply, err := c.q.Query(c.resistanceCmd)
	if err != nil {
		return Measurement{}, err
	}

	high, low, err := parseResistances(reply)
	if err != nil {
		return Measurement{}, err
	}

	m := Measurement{
		HighOhms: high,
		LowOhms:  low,
		Result:   Validate(high <= c.threshold, low <= c.threshold, c.threshold),
	}

	if m.Result.Passed() {
		c.logger.Debug("contact check passed", "high_ohms", high, "low_ohms", low)
	} else {
		c.logger.Warn("contact check failed", "outcome", m.Result.Outcome.String(),
			"high_ohms", high, "low_ohms", low, "threshold", c.threshold)
	}

	return m, nil
}

func parseResistances(reply string) (high, low float64, err error) {
	hs, ls, ok := strings.Cut(strings.TrimSpace(reply), ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedReply, reply)
	}

	high, err = strconv.ParseFloat(strings.TrimSpace(hs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %w", ErrMalformedReply, reply, err)
	}
	low, err = strconv.ParseFloat(strings.TrimSpace(ls), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %w", ErrMalformedReply, reply, err)
	}

	return high, low, nil
}
