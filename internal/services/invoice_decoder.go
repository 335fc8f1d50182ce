package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/binito/despesify/internal/errors"
	"github.com/binito/despesify/internal/models"
	"github.com/binito/despesify/internal/payload"
)

// InvoiceDecoder turns a raw QR payload into an invoice record
type InvoiceDecoder struct {
	mapper     *payload.Mapper
	reconciler *TaxReconciler
	observe    DecodeObserver
	logger     *zap.Logger
}

// DecodeObserver is told the outcome of every Decode call. match is empty
// for error records.
type DecodeObserver func(ok bool, match string)

// NewInvoiceDecoder creates a decoder
func NewInvoiceDecoder(rates payload.RateTable, tolerance float64, logger *zap.Logger) *InvoiceDecoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceDecoder{
		mapper:     payload.NewMapper(rates),
		reconciler: NewTaxReconciler(tolerance),
		logger:     logger.Named("decoder"),
	}
}

// WithObserver registers fn for every decode
func (d *InvoiceDecoder) WithObserver(fn DecodeObserver) *InvoiceDecoder {
	d.observe = fn
	return d
}

// Decode runs tokenize, map and reconcile. It always returns exactly one of
// an invoice or an error record, even if a stage panics.
func (d *InvoiceDecoder) Decode(raw string) (res models.DecodeResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("payload decoding panicked", zap.Any("panic", r), zap.String("raw_payload", raw))
			res = errorResult(apperrors.Wrap(apperrors.ErrPayloadFault, fmt.Errorf("%v", r)), raw)
		}
		if d.observe != nil {
			d.observe(res.OK(), res.Match)
		}
	}()

	tokens := payload.Tokenize(raw)
	if len(tokens) == 0 {
		d.logger.Warn("payload has no fields", zap.Int("length", len(raw)))
		return errorResult(apperrors.ErrPayloadEmpty, raw)
	}

	fields := d.mapper.Map(tokens)
	rec := fields.Record
	rec.RawPayload = raw

	rc := d.reconciler.Reconcile(fields.CandidateN, fields.CandidateO, rec.VatLines)
	rc.Apply(&rec)

	for _, w := range rc.Warnings {
		d.logger.Info("reconciliation warning", zap.String("code", w.Code), zap.String("message", w.Message))
	}
	d.logger.Debug("payload decoded",
		zap.Int("tokens", len(tokens)),
		zap.Int("vat_lines", len(rec.VatLines)),
		zap.String("match", rc.Match),
	)

	return models.DecodeResult{Invoice: &rec, Match: rc.Match}
}

// errorResult builds an ErrorRecord from err's message
func errorResult(err error, raw string) models.DecodeResult {
	return models.DecodeResult{Error: newErrorRecord(err, &raw)}
}

// newErrorRecord drops the [CODE] prefix of app errors from the message
func newErrorRecord(err error, raw *string) *models.ErrorRecord {
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
		if appErr.Cause != nil {
			msg += ": " + appErr.Cause.Error()
		}
	}
	return &models.ErrorRecord{Error: msg, RawPayload: raw}
}
