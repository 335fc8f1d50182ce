package services

import (
	"context"
	"errors"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/binito/despesify/internal/errors"
	"github.com/binito/despesify/internal/metrics"
	"github.com/binito/despesify/internal/models"
	"github.com/binito/despesify/internal/payload"
	"github.com/binito/despesify/internal/qr"
	"github.com/binito/despesify/internal/raster"
)

// Detection outcomes, as counted in metrics
const (
	OutcomeFound     = "found"
	OutcomeExhausted = "exhausted"
	OutcomeTimeout   = "timeout"
	OutcomeLoadError = "load_error"
	OutcomeError     = "error"
)

// Outcome is the result of processing one image or payload
type Outcome struct {
	Result   models.DecodeResult
	Payload  string
	Strategy string // detection strategy that found the code, empty for text input
	Attempts int
	Duration time.Duration
}

// QRProcessor runs image -> detection -> decoding
type QRProcessor struct {
	detector *qr.Detector
	decoder  *InvoiceDecoder
	timeout  time.Duration
	record   func(outcome string)
	logger   *zap.Logger
}

// NewQRProcessor creates a processor. timeout <= 0 disables the per-image deadline.
func NewQRProcessor(detector *qr.Detector, decoder *InvoiceDecoder, timeout time.Duration, logger *zap.Logger) *QRProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRProcessor{
		detector: detector,
		decoder:  decoder,
		timeout:  timeout,
		logger:   logger.Named("processor"),
	}
}

// NewQRProcessorFromConfig wires the detector and decoder from cfg. m may be nil.
func NewQRProcessorFromConfig(cfg *models.Config, logger *zap.Logger, m *metrics.Metrics) *QRProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []qr.Option
	if cfg.Detection.Fallback {
		opts = append(opts, qr.WithFallback(qr.NewFallbackScanner()))
	}
	if m != nil {
		opts = append(opts, qr.WithObserver(m.ObserveAttempt))
	}
	detector := qr.NewDetector(qr.NewPrimaryScanner(), qr.NewPreprocessor(cfg.Detection.UpscaleTarget), logger, opts...)

	rates := payload.DefaultRateTable()
	if len(cfg.Payload.RateTable) > 0 {
		rates = payload.NewRateTable(cfg.Payload.RateTable)
	}
	decoder := NewInvoiceDecoder(rates, cfg.Payload.Tolerance, logger)

	p := NewQRProcessor(detector, decoder, time.Duration(cfg.Detection.TimeoutSeconds)*time.Second, logger)
	if m != nil {
		decoder.WithObserver(m.Decode)
		p.record = m.Detection
	}
	return p
}

// ProcessFile loads the image at path and decodes its QR code.
// Terminal failures return an error together with an Outcome carrying the
// matching error record.
func (p *QRProcessor) ProcessFile(ctx context.Context, path string) (*Outcome, error) {
	start := time.Now()
	img, err := raster.Load(path)
	if err != nil {
		return p.fail(err, OutcomeLoadError, start)
	}
	return p.ProcessImage(ctx, img)
}

// ProcessBytes decodes an uploaded image
func (p *QRProcessor) ProcessBytes(ctx context.Context, data []byte) (*Outcome, error) {
	start := time.Now()
	img, err := raster.Decode(data)
	if err != nil {
		return p.fail(err, OutcomeLoadError, start)
	}
	return p.ProcessImage(ctx, img)
}

// ProcessImage runs detection and decoding on an already loaded image
func (p *QRProcessor) ProcessImage(ctx context.Context, img image.Image) (*Outcome, error) {
	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	det, err := p.detector.Detect(ctx, img)
	if err != nil {
		outcome := OutcomeTimeout
		if !errors.Is(err, apperrors.ErrDetectionTimeout) {
			outcome = OutcomeError
		}
		return p.fail(err, outcome, start)
	}
	if !det.Found {
		out, _ := p.fail(apperrors.ErrDetectionExhausted, OutcomeExhausted, start)
		out.Attempts = det.Attempts
		return out, apperrors.ErrDetectionExhausted
	}
	p.recordOutcome(OutcomeFound)

	out := p.decode(det.Payload)
	out.Strategy = det.Strategy
	out.Attempts = det.Attempts
	out.Duration = time.Since(start)
	p.logger.Info("image processed",
		zap.String("strategy", det.Strategy),
		zap.Int("attempts", det.Attempts),
		zap.Bool("decoded", out.Result.OK()),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}

// ProcessText decodes a payload read elsewhere (camera scan, text file).
// Surrounding whitespace and line breaks are removed first.
func (p *QRProcessor) ProcessText(raw string) *Outcome {
	return p.decode(strings.TrimSpace(raw))
}

func (p *QRProcessor) decode(raw string) *Outcome {
	start := time.Now()
	return &Outcome{
		Result:   p.decoder.Decode(raw),
		Payload:  raw,
		Duration: time.Since(start),
	}
}

func (p *QRProcessor) fail(err error, outcome string, start time.Time) (*Outcome, error) {
	p.recordOutcome(outcome)
	p.logger.Warn("image processing failed", zap.String("outcome", outcome), zap.Error(err))
	return &Outcome{
		Result:   models.DecodeResult{Error: newErrorRecord(err, nil)},
		Duration: time.Since(start),
	}, err
}

func (p *QRProcessor) recordOutcome(outcome string) {
	if p.record != nil {
		p.record(outcome)
	}
}
