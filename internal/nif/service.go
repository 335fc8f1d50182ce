package nif

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/binito/despesify/internal/errors"
	"github.com/binito/despesify/internal/models"
)

const (
	SourceCache  = "cache"
	SourceRemote = "nif.pt"
)

// Cache stores resolved companies. Get returns (nil, nil) on a miss.
type Cache interface {
	GetCompany(ctx context.Context, nif string) (*models.Company, error)
	SaveCompany(ctx context.Context, c *models.Company) error
}

// Remote resolves names not yet cached
type Remote interface {
	Lookup(ctx context.Context, nif string) (string, error)
}

// Service looks a NIF up in the cache first, then remotely
type Service struct {
	cache  Cache
	remote Remote
	logger *zap.Logger
}

// NewService creates a lookup service. Either dependency may be nil.
func NewService(cache Cache, remote Remote, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cache: cache, remote: remote, logger: logger.Named("nif")}
}

// Lookup returns the company for nif. Unknown NIFs yield ErrNotFound,
// malformed ones ErrBadRequest.
func (s *Service) Lookup(ctx context.Context, nif string) (*models.Company, error) {
	if !Valid(nif) {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "invalid NIF")
	}

	if s.cache != nil {
		c, err := s.cache.GetCompany(ctx, nif)
		if err != nil {
			s.logger.Warn("nif cache read failed", zap.String("nif", nif), zap.Error(err))
		} else if c != nil {
			c.Name = CleanName(c.Name)
			c.Source = SourceCache
			return c, nil
		}
	}

	if s.remote == nil {
		return nil, apperrors.ErrNotFound
	}
	name, err := s.remote.Lookup(ctx, nif)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, err)
	}
	if name == "" {
		return nil, apperrors.ErrNotFound
	}

	c := &models.Company{NIF: nif, Name: name, Source: SourceRemote}
	if s.cache != nil {
		if err := s.cache.SaveCompany(ctx, c); err != nil {
			s.logger.Warn("failed to cache company", zap.String("nif", nif), zap.Error(err))
		}
	}
	return c, nil
}
