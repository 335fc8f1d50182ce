package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/binito/despesify/internal/models"
)

// GetCompany reads a cached issuer. A miss returns (nil, nil).
func (s *Store) GetCompany(ctx context.Context, nif string) (*models.Company, error) {
	var c models.Company
	err := s.pool.QueryRow(ctx,
		`SELECT nif, company_name, category_id FROM nif_cache WHERE nif = $1`, nif,
	).Scan(&c.NIF, &c.Name, &c.CategoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read nif cache: %w", err)
	}
	return &c, nil
}

// SaveCompany caches an issuer name. Existing rows keep their category.
func (s *Store) SaveCompany(ctx context.Context, c *models.Company) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nif_cache (nif, company_name, category_id) VALUES ($1, $2, $3)
		 ON CONFLICT (nif) DO NOTHING`,
		c.NIF, c.Name, c.CategoryID,
	)
	if err != nil {
		return fmt.Errorf("failed to write nif cache: %w", err)
	}
	return nil
}
