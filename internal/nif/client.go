// Package nif resolves Portuguese tax ids (NIF) to company names.
package nif

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var nifPattern = regexp.MustCompile(`^[0-9]{9}$`)

// prefixes nif.pt titles sometimes carry ("da Empresa, Lda")
var articlePrefix = regexp.MustCompile(`(?i)^(da|do|de|dos|das)\s+`)

// ErrMissingAPIKey is returned when no nif.pt key is configured
var ErrMissingAPIKey = errors.New("nif.pt API key is not configured")

// Valid reports whether s looks like a NIF (nine digits)
func Valid(s string) bool {
	return nifPattern.MatchString(s)
}

// CleanName trims a company title and drops a leading article
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	return strings.TrimSpace(articlePrefix.ReplaceAllString(name, ""))
}

// Client queries the nif.pt JSON API
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

type apiResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Records map[string]struct {
		Title string `json:"title"`
	} `json:"records"`
}

// NewClient creates a client limited to perSecond requests. perSecond <= 0
// disables limiting.
func NewClient(baseURL, apiKey string, perSecond float64, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:    "nif.pt",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		logger: logger.Named("nif"),
	}
}

// Lookup returns the company name for nif, or "" when nif.pt has no record
func (c *Client) Lookup(ctx context.Context, nif string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return c.breaker.Execute(func() (string, error) {
		return c.fetch(ctx, nif)
	})
}

func (c *Client) fetch(ctx context.Context, nif string) (string, error) {
	q := url.Values{}
	q.Set("json", "1")
	q.Set("q", nif)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Despesify/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("nif.pt request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nif.pt returned status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode nif.pt response: %w", err)
	}

	if body.Result == "error" {
		// key problems are fatal, anything else is "not found"
		if strings.Contains(body.Message, "key") {
			return "", fmt.Errorf("nif.pt: %s", body.Message)
		}
		c.logger.Info("nif.pt returned an error", zap.String("nif", nif), zap.String("message", body.Message))
		return "", nil
	}

	rec, ok := body.Records[nif]
	if !ok || rec.Title == "" {
		return "", nil
	}
	return CleanName(rec.Title), nil
}
