package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/binito/despesify/internal/auth"
	"github.com/binito/despesify/internal/db"
	apperrors "github.com/binito/despesify/internal/errors"
	"github.com/binito/despesify/internal/metrics"
	"github.com/binito/despesify/internal/models"
	"github.com/binito/despesify/internal/services"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"

	listLimit = 100
)

// FaturaStore persists decoded invoices
type FaturaStore interface {
	SaveFatura(ctx context.Context, f *db.Fatura) error
	ListFaturas(ctx context.Context, userID string, limit int) ([]db.Fatura, error)
	GetFatura(ctx context.Context, userID string, id uuid.UUID) (*db.Fatura, error)
	Ping(ctx context.Context) error
}

// ScanStorage keeps uploaded scans
type ScanStorage interface {
	UploadScan(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error)
	PresignedURL(ctx context.Context, objectPath string) (string, error)
	Ping(ctx context.Context) error
}

// CompanyLookup resolves issuer names from their NIF
type CompanyLookup interface {
	Lookup(ctx context.Context, nif string) (*models.Company, error)
}

// Handler handles HTTP requests for QR invoice decoding
type Handler struct {
	config    *models.Config
	processor *services.QRProcessor
	store     FaturaStore
	storage   ScanStorage
	companies CompanyLookup
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures the optional collaborators of a Handler
type Option func(*Handler)

// WithStore enables persistence of decoded invoices
func WithStore(s FaturaStore) Option {
	return func(h *Handler) { h.store = s }
}

// WithStorage enables upload of the source scans
func WithStorage(s ScanStorage) Option {
	return func(h *Handler) { h.storage = s }
}

// WithCompanies enables issuer name lookup
func WithCompanies(c CompanyLookup) Option {
	return func(h *Handler) { h.companies = c }
}

// WithMetrics counts requests and serves /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, processor *services.QRProcessor, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		config:    config,
		processor: processor,
		logger:    logger.Named("api"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.countRequests)

	router.HandleFunc("/health", h.Health).Methods("GET")
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(h.config.Auth.JWTSecret))

	api.HandleFunc("/qr-reader", h.ReadQR).Methods("POST")
	api.HandleFunc("/faturas", h.GetFaturas).Methods("GET")
	api.HandleFunc("/faturas/{id}", h.GetFatura).Methods("GET")
	api.HandleFunc("/nif-lookup", h.LookupNIF).Methods("POST")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
	NIF       ServiceStatus `json:"nif"`
	Detection Detection     `json:"detection"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// Detection summarises the configured detection chain
type Detection struct {
	Fallback       bool `json:"fallback"`
	UpscaleTarget  int  `json:"upscaleTarget"`
	TimeoutSeconds int  `json:"timeoutSeconds"`
}

var startTime = time.Now()

// Health reports dependency status. Database and storage are optional, so
// their absence never makes the service unhealthy; a configured one that
// stops answering does.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: h.now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		NIF: ServiceStatus{Available: h.companies != nil},
		Detection: Detection{
			Fallback:       h.config.Detection.Fallback,
			UpscaleTarget:  h.config.Detection.UpscaleTarget,
			TimeoutSeconds: h.config.Detection.TimeoutSeconds,
		},
	}

	degraded := false
	if h.store != nil {
		response.Database = pingStatus(ctx, h.store.Ping)
		degraded = degraded || !response.Database.Available
	} else {
		response.Database = ServiceStatus{Error: "not configured"}
	}
	if h.storage != nil {
		response.Storage = pingStatus(ctx, h.storage.Ping)
		degraded = degraded || !response.Storage.Available
	} else {
		response.Storage = ServiceStatus{Error: "not configured"}
	}

	if degraded {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

func pingStatus(ctx context.Context, ping func(context.Context) error) ServiceStatus {
	if err := ping(ctx); err != nil {
		return ServiceStatus{Error: err.Error()}
	}
	return ServiceStatus{Available: true}
}

type qrTextRequest struct {
	QRText string `json:"qr_text"`
}

// ReadQR decodes an invoice QR code from an uploaded scan (multipart
// "file" or "image") or from already scanned text (JSON or form "qr_text").
func (h *Handler) ReadQR(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	start := time.Now()

	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var (
		outcome  *services.Outcome
		imageURL string
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req qrTextRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxUploadSize)).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.QRText) == "" {
			h.sendError(w, http.StatusBadRequest, "qr_text is required")
			return
		}
		outcome = h.processor.ProcessText(req.QRText)
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			file, header, err = r.FormFile("image")
		}
		if err != nil {
			text := r.FormValue("qr_text")
			if strings.TrimSpace(text) == "" {
				h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' or 'image' field, or 'qr_text')")
				return
			}
			outcome = h.processor.ProcessText(text)
		} else {
			defer file.Close()

			imageData, err := io.ReadAll(file)
			if err != nil {
				h.sendError(w, http.StatusInternalServerError, "Failed to read file")
				return
			}

			contentType := header.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "image/jpeg"
			}
			imageURL = h.uploadScan(ctx, claims.UserID, imageData, contentType)

			// failures still carry an error record in the outcome
			outcome, _ = h.processor.ProcessBytes(ctx, imageData)
		}
	}

	totalDuration := time.Since(start).Seconds()
	result := outcome.Result
	if !result.OK() {
		h.logger.Info("qr-reader failed",
			zap.String("user_id", claims.UserID),
			zap.String("error", result.Error.Error),
		)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ProcessResponse{
			Success:       false,
			QRData:        result.Error,
			Error:         result.Error.Error,
			Strategy:      outcome.Strategy,
			TotalDuration: totalDuration,
		})
		return
	}

	rec := result.Invoice
	company := h.lookupIssuer(ctx, rec.IssuerTaxID)
	response := models.ProcessResponse{
		Success:       true,
		QRData:        rec,
		Expense:       services.BuildExpense(rec, company, h.now()),
		Strategy:      outcome.Strategy,
		TotalDuration: time.Since(start).Seconds(),
	}

	if h.store != nil {
		fatura, err := db.NewFatura(claims.UserID, rec, imageURL)
		if err == nil {
			err = h.store.SaveFatura(ctx, fatura)
		}
		if err != nil {
			h.logger.Warn("failed to save fatura", zap.String("user_id", claims.UserID), zap.Error(err))
		} else {
			response.SavedID = fatura.ID.String()
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) uploadScan(ctx context.Context, userID string, data []byte, contentType string) string {
	if h.storage == nil {
		return ""
	}
	url, err := h.storage.UploadScan(ctx, userID, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		// image storage is optional
		h.logger.Warn("failed to upload scan", zap.Error(err))
		return ""
	}
	return url
}

func (h *Handler) lookupIssuer(ctx context.Context, nif *string) *models.Company {
	if h.companies == nil || nif == nil {
		return nil
	}
	company, err := h.companies.Lookup(ctx, *nif)
	if err != nil {
		h.logger.Debug("issuer lookup failed", zap.String("nif", *nif), zap.Error(err))
		return nil
	}
	return company
}

// GetFaturas returns the caller's decoded invoices
func (h *Handler) GetFaturas(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	faturas, err := h.store.ListFaturas(ctx, claims.UserID, listLimit)
	if err != nil {
		h.logger.Error("failed to list faturas", zap.String("user_id", claims.UserID), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to get faturas")
		return
	}

	for i := range faturas {
		faturas[i].ImageURL = h.presign(ctx, faturas[i].ImageURL)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"faturas": faturas,
		"count":   len(faturas),
	})
}

// GetFatura returns a single decoded invoice
func (h *Handler) GetFatura(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid id")
		return
	}

	fatura, err := h.store.GetFatura(ctx, claims.UserID, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		h.sendError(w, http.StatusNotFound, "fatura not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get fatura", zap.String("id", id.String()), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to get fatura")
		return
	}
	fatura.ImageURL = h.presign(ctx, fatura.ImageURL)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"fatura":  fatura,
	})
}

func (h *Handler) presign(ctx context.Context, path string) string {
	if path == "" || h.storage == nil {
		return path
	}
	url, err := h.storage.PresignedURL(ctx, path)
	if err != nil {
		return path
	}
	return url
}

type nifRequest struct {
	NIF string `json:"nif"`
}

// LookupNIF resolves the company behind a NIF
func (h *Handler) LookupNIF(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req nifRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if h.companies == nil {
		h.sendError(w, http.StatusServiceUnavailable, "nif lookup not available")
		return
	}

	company, err := h.companies.Lookup(r.Context(), strings.TrimSpace(req.NIF))
	switch {
	case errors.Is(err, apperrors.ErrBadRequest):
		h.sendError(w, http.StatusBadRequest, "NIF must have 9 digits")
		return
	case errors.Is(err, apperrors.ErrNotFound):
		h.sendError(w, http.StatusNotFound, "NIF not found")
		return
	case err != nil:
		h.logger.Error("nif lookup failed", zap.String("nif", req.NIF), zap.Error(err))
		h.sendError(w, http.StatusBadGateway, "nif lookup failed")
		return
	}

	json.NewEncoder(w).Encode(company)
}

// countRequests records the status of every routed request
func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		h.metrics.Request(route, sw.status)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
