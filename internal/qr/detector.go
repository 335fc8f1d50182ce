package qr

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/binito/despesify/internal/errors"
)

// Capability selects which scanner an attempt uses
type Capability int

const (
	CapabilityPrimary Capability = iota
	CapabilityFallback
)

func (c Capability) String() string {
	if c == CapabilityFallback {
		return "fallback"
	}
	return "primary"
}

// TransformOriginalGray is the first attempt: the original in grayscale.
const TransformOriginalGray = "original-gray"

// Strategy is one detection attempt: which transform produces the
// candidate and which capability scans it.
type Strategy struct {
	Transform  Transform
	Capability Capability
}

// ID identifies the attempt in logs and metrics, e.g. "primary/otsu"
func (s Strategy) ID() string {
	return s.Capability.String() + "/" + s.Transform.ID
}

// Candidate is the image produced by a strategy's transform
type Candidate struct {
	ID    string
	Image image.Image
}

// Detection is the outcome of a detection run. Found is false when every
// strategy was tried without success.
type Detection struct {
	Payload  string
	Strategy string
	Found    bool
	Attempts int
}

// Observer is notified after each scan attempt
type Observer func(strategy Strategy, found bool, elapsed time.Duration)

// Detector runs the ordered strategy plan against an image
type Detector struct {
	primary  Scanner
	fallback Scanner
	prep     *Preprocessor
	observe  Observer
	logger   *zap.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithFallback enables the fallback capability after the primary chain fails
func WithFallback(s Scanner) Option {
	return func(d *Detector) {
		d.fallback = s
	}
}

// WithObserver registers a callback for every attempt
func WithObserver(o Observer) Option {
	return func(d *Detector) {
		d.observe = o
	}
}

// NewDetector creates a detector scanning with primary over prep's catalog
func NewDetector(primary Scanner, prep *Preprocessor, logger *zap.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		primary: primary,
		prep:    prep,
		logger:  logger.Named("detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Plan returns the attempt order:
//  1. original in grayscale, primary
//  2. every catalog variant, primary
//  3. rotations 90° cw, 180°, 90° ccw of the original, primary
//  4. with a fallback: original in color, then every catalog variant, fallback
func Plan(prep *Preprocessor, hasFallback bool) []Strategy {
	catalog := prep.Catalog()
	rotations := prep.Rotations()

	plan := make([]Strategy, 0, 1+len(catalog)+len(rotations)+1+len(catalog))

	originalGray := prep.Grayscale()
	originalGray.ID = TransformOriginalGray
	plan = append(plan, Strategy{Transform: originalGray, Capability: CapabilityPrimary})

	for _, t := range catalog {
		plan = append(plan, Strategy{Transform: t, Capability: CapabilityPrimary})
	}
	for _, t := range rotations {
		plan = append(plan, Strategy{Transform: t, Capability: CapabilityPrimary})
	}

	if hasFallback {
		plan = append(plan, Strategy{Transform: prep.Identity(), Capability: CapabilityFallback})
		for _, t := range catalog {
			plan = append(plan, Strategy{Transform: t, Capability: CapabilityFallback})
		}
	}
	return plan
}

// Plan returns this detector's attempt order
func (d *Detector) Plan() []Strategy {
	return Plan(d.prep, d.fallback != nil)
}

// Detect returns the payload of the first strategy that decodes a QR code.
// A run that exhausts the plan is not an error: it returns Found == false.
// ctx is checked between attempts; a deadline yields ErrDetectionTimeout.
func (d *Detector) Detect(ctx context.Context, img image.Image) (Detection, error) {
	plan := d.Plan()
	b := img.Bounds()
	d.logger.Debug("starting detection",
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Int("strategies", len(plan)),
	)

	attempts := 0
	for _, s := range plan {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("detection interrupted", zap.Int("attempts", attempts), zap.Error(err))
			return Detection{Attempts: attempts}, apperrors.Wrap(apperrors.ErrDetectionTimeout, err)
		}

		candidate, ok := d.candidate(s, img)
		if !ok {
			d.logger.Debug("strategy not applicable", zap.String("strategy", s.ID()))
			continue
		}

		attempts++
		start := time.Now()
		text, found := d.scanner(s.Capability).Scan(candidate.Image)
		elapsed := time.Since(start)
		found = found && text != ""

		if d.observe != nil {
			d.observe(s, found, elapsed)
		}
		d.logger.Debug("attempt",
			zap.String("strategy", s.ID()),
			zap.Bool("found", found),
			zap.Duration("elapsed", elapsed),
		)

		if found {
			d.logger.Info("QR code detected", zap.String("strategy", s.ID()), zap.Int("attempts", attempts))
			return Detection{Payload: text, Strategy: s.ID(), Found: true, Attempts: attempts}, nil
		}
	}

	d.logger.Info("no QR code found", zap.Int("attempts", attempts))
	return Detection{Attempts: attempts}, nil
}

func (d *Detector) candidate(s Strategy, img image.Image) (Candidate, bool) {
	out, ok := s.Transform.Apply(img)
	if !ok {
		return Candidate{}, false
	}
	return Candidate{ID: s.Transform.ID, Image: out}, true
}

func (d *Detector) scanner(c Capability) Scanner {
	if c == CapabilityFallback {
		return d.fallback
	}
	return d.primary
}
