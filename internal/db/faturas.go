package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	apperrors "github.com/binito/despesify/internal/errors"
	"github.com/binito/despesify/internal/models"
)

// Fatura is a decoded invoice as stored for a user
type Fatura struct {
	ID             uuid.UUID        `json:"id"`
	UserID         string           `json:"user_id"`
	IssuerTaxID    string           `json:"nif_emitente"`
	DocumentNumber string           `json:"numero_documento"`
	ATCUD          string           `json:"atcud"`
	IssueDate      string           `json:"data_emissao"`
	Total          *decimal.Decimal `json:"total"`
	WithheldTax    *decimal.Decimal `json:"retencao"`
	TaxBase        decimal.Decimal  `json:"base_total"`
	VatTotal       decimal.Decimal  `json:"iva_total"`
	RawPayload     string           `json:"raw_payload"`
	Record         json.RawMessage  `json:"qr_data,omitempty"`
	ImageURL       string           `json:"imagem_url"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewFatura builds the row for a decoded record
func NewFatura(userID string, rec *models.InvoiceRecord, imageURL string) (*Fatura, error) {
	record, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return &Fatura{
		ID:             uuid.New(),
		UserID:         userID,
		IssuerTaxID:    deref(rec.IssuerTaxID),
		DocumentNumber: deref(rec.DocumentNumber),
		ATCUD:          deref(rec.UniqueDocumentCode),
		IssueDate:      deref(rec.IssueDate),
		Total:          rec.TotalAmount,
		WithheldTax:    rec.WithheldTax,
		TaxBase:        rec.TotalBaseComputed,
		VatTotal:       rec.TotalVatComputed,
		RawPayload:     rec.RawPayload,
		Record:         record,
		ImageURL:       imageURL,
	}, nil
}

// SaveFatura inserts f and fills in CreatedAt
func (s *Store) SaveFatura(ctx context.Context, f *Fatura) error {
	query := `
		INSERT INTO faturas_qr (
			id, user_id, nif_emitente, numero_documento, atcud, data_emissao,
			total, retencao, base_total, iva_total, raw_payload, record_json, imagem_url
		) VALUES ($1, $2, $3, $4, $5, $6,
			$7::text::numeric, $8::text::numeric, $9::text::numeric, $10::text::numeric,
			$11, $12::jsonb, $13)
		RETURNING created_at
	`
	err := s.pool.QueryRow(ctx, query,
		f.ID, f.UserID, f.IssuerTaxID, f.DocumentNumber, f.ATCUD, f.IssueDate,
		numericArg(f.Total), numericArg(f.WithheldTax), f.TaxBase.String(), f.VatTotal.String(),
		f.RawPayload, []byte(f.Record), f.ImageURL,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save fatura: %w", err)
	}
	return nil
}

// ListFaturas returns the user's most recent invoices, without the full record
func (s *Store) ListFaturas(ctx context.Context, userID string, limit int) ([]Fatura, error) {
	query := `
		SELECT id, user_id, COALESCE(nif_emitente, ''), COALESCE(numero_documento, ''),
		       COALESCE(atcud, ''), COALESCE(data_emissao, ''), total::text, retencao::text,
		       base_total::text, iva_total::text, raw_payload, COALESCE(imagem_url, ''), created_at
		FROM faturas_qr
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	faturas := []Fatura{}
	for rows.Next() {
		var (
			f                   Fatura
			total, withheld     *string
			baseTotal, vatTotal string
		)
		err := rows.Scan(
			&f.ID, &f.UserID, &f.IssuerTaxID, &f.DocumentNumber,
			&f.ATCUD, &f.IssueDate, &total, &withheld,
			&baseTotal, &vatTotal, &f.RawPayload, &f.ImageURL, &f.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := f.setAmounts(total, withheld, baseTotal, vatTotal); err != nil {
			return nil, err
		}
		faturas = append(faturas, f)
	}
	return faturas, rows.Err()
}

// GetFatura retrieves one of the user's invoices by id
func (s *Store) GetFatura(ctx context.Context, userID string, id uuid.UUID) (*Fatura, error) {
	query := `
		SELECT id, user_id, COALESCE(nif_emitente, ''), COALESCE(numero_documento, ''),
		       COALESCE(atcud, ''), COALESCE(data_emissao, ''), total::text, retencao::text,
		       base_total::text, iva_total::text, raw_payload, record_json::text,
		       COALESCE(imagem_url, ''), created_at
		FROM faturas_qr
		WHERE id = $1 AND user_id = $2
	`
	var (
		f                   Fatura
		total, withheld     *string
		baseTotal, vatTotal string
		record              string
	)
	err := s.pool.QueryRow(ctx, query, id, userID).Scan(
		&f.ID, &f.UserID, &f.IssuerTaxID, &f.DocumentNumber,
		&f.ATCUD, &f.IssueDate, &total, &withheld,
		&baseTotal, &vatTotal, &f.RawPayload, &record,
		&f.ImageURL, &f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Errorf("fatura %s", id))
	}
	if err != nil {
		return nil, err
	}
	if err := f.setAmounts(total, withheld, baseTotal, vatTotal); err != nil {
		return nil, err
	}
	f.Record = json.RawMessage(record)
	return &f, nil
}

func (f *Fatura) setAmounts(total, withheld *string, baseTotal, vatTotal string) error {
	var err error
	if f.Total, err = parseNumeric(total); err != nil {
		return err
	}
	if f.WithheldTax, err = parseNumeric(withheld); err != nil {
		return err
	}
	if f.TaxBase, err = decimal.NewFromString(baseTotal); err != nil {
		return fmt.Errorf("base_total: %w", err)
	}
	if f.VatTotal, err = decimal.NewFromString(vatTotal); err != nil {
		return fmt.Errorf("iva_total: %w", err)
	}
	return nil
}

// numeric columns travel as text so no driver-specific decimal codec is needed
func numericArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseNumeric(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("numeric %q: %w", *s, err)
	}
	return &d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
