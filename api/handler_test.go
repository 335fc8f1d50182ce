package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/binito/despesify/internal/auth"
	"github.com/binito/despesify/internal/config"
	"github.com/binito/despesify/internal/db"
	apperrors "github.com/binito/despesify/internal/errors"
	"github.com/binito/despesify/internal/metrics"
	"github.com/binito/despesify/internal/models"
	"github.com/binito/despesify/internal/services"
)

const (
	testSecret = "api-test-secret"
	payload    = "A:123456789*B:999999990*C:PT*D:FT*E:N*F:20240115*G:FT 1/123*H:ABC123*I1:PT*I3:100.00*I4:23.00*N:23.00*O:0*P:hash1*Q:CERT001"
)

func TestMain(m *testing.M) {
	decimal.MarshalJSONWithoutQuotes = true
	os.Exit(m.Run())
}

type memStore struct {
	saved   []*db.Fatura
	pingErr error
}

func (m *memStore) SaveFatura(_ context.Context, f *db.Fatura) error {
	f.CreatedAt = time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	m.saved = append(m.saved, f)
	return nil
}

func (m *memStore) ListFaturas(_ context.Context, userID string, limit int) ([]db.Fatura, error) {
	out := []db.Fatura{}
	for _, f := range m.saved {
		if f.UserID == userID && len(out) < limit {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memStore) GetFatura(_ context.Context, userID string, id uuid.UUID) (*db.Fatura, error) {
	for _, f := range m.saved {
		if f.ID == id && f.UserID == userID {
			c := *f
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

type memStorage struct{ uploads int }

func (m *memStorage) UploadScan(_ context.Context, userID string, _ io.Reader, _ int64, _ string) (string, error) {
	m.uploads++
	return "faturas/" + userID + "/scan.png", nil
}

func (m *memStorage) PresignedURL(_ context.Context, path string) (string, error) {
	return "https://minio.local/" + path + "?signed", nil
}

func (m *memStorage) Ping(context.Context) error { return nil }

type stubCompanies map[string]string

func (s stubCompanies) Lookup(_ context.Context, nif string) (*models.Company, error) {
	if len(nif) != 9 {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "invalid NIF")
	}
	name, ok := s[nif]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &models.Company{NIF: nif, Name: name, Source: "cache"}, nil
}

type fixture struct {
	router  http.Handler
	store   *memStore
	storage *memStorage
	metrics *metrics.Metrics
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = testSecret

	m := metrics.New()
	f := &fixture{store: &memStore{}, storage: &memStorage{}, metrics: m}
	h := NewHandler(cfg, services.NewQRProcessorFromConfig(cfg, zap.NewNop(), m), zap.NewNop(),
		WithStore(f.store),
		WithStorage(f.storage),
		WithCompanies(stubCompanies{"123456789": "Mercearia Lda"}),
		WithMetrics(m),
	)
	h.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	f.router = h.SetupRoutes()

	token, err := auth.GenerateToken(testSecret, "user-1", "u@x.pt", time.Hour)
	require.NoError(t, err)
	f.token = token
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if f.token != "" && strings.HasPrefix(req.URL.Path, "/api/") {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func qrPNG(t *testing.T, text string) []byte {
	t.Helper()
	m, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 300, 300, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, m))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="fatura.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/qr-reader", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestReadQR_Upload(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, multipartRequest(t, "image", qrPNG(t, payload)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "primary/original-gray", out["strategy"])

	qr := out["qr_data"].(map[string]interface{})
	assert.Equal(t, "123456789", qr["issuer_tax_id"])
	assert.Equal(t, 123.0, qr["total_amount"])

	expense := out["expense"].(map[string]interface{})
	assert.Equal(t, "Mercearia Lda", expense["description"])
	assert.Equal(t, 123.0, expense["amount"])
	assert.Equal(t, "2024-01-15", expense["date"])

	assert.Equal(t, 1, f.storage.uploads)
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, out["id"], f.store.saved[0].ID.String())
	assert.Equal(t, "faturas/user-1/scan.png", f.store.saved[0].ImageURL)
}

func TestReadQR_Text(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/qr-reader", strings.NewReader(`{"qr_text":"  `+payload+`\n"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	assert.Empty(t, out["strategy"])
	assert.Equal(t, payload, out["qr_data"].(map[string]interface{})["raw_payload"])
	assert.Zero(t, f.storage.uploads)
	assert.Len(t, f.store.saved, 1)
}

func TestReadQR_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		req     func() *http.Request
		wantErr string
	}{
		{
			name: "empty qr_text",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/qr-reader", strings.NewReader(`{"qr_text":" "}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			wantErr: "qr_text is required",
		},
		{
			name: "unparsable payload",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/qr-reader", strings.NewReader(`{"qr_text":"hello"}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			wantErr: "payload contains no key:value fields",
		},
		{
			name:    "not an image",
			req:     func() *http.Request { return multipartRequest(t, "file", []byte("plain text")) },
			wantErr: "image could not be decoded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.req())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], tt.wantErr)
		})
	}
	assert.Empty(t, f.store.saved)
}

func TestAPI_RequiresToken(t *testing.T) {
	f := newFixture(t)
	f.token = ""
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/faturas", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetFaturas(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/qr-reader", strings.NewReader(`{"qr_text":"`+payload+`"}`))
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusOK, f.do(t, req).Code)
	f.store.saved[0].ImageURL = "faturas/user-1/x.png"

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/faturas", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, 1.0, out["count"])
	item := out["faturas"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "FT 1/123", item["numero_documento"])
	assert.Equal(t, "https://minio.local/faturas/user-1/x.png?signed", item["imagem_url"])

	id := f.store.saved[0].ID.String()
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/faturas/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeBody(t, rec)["fatura"].(map[string]interface{})["id"])

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/faturas/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/faturas/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFaturas_NoDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = testSecret
	h := NewHandler(cfg, services.NewQRProcessorFromConfig(cfg, nil, nil), nil)

	token, err := auth.GenerateToken(testSecret, "user-1", "", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/faturas", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.SetupRoutes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLookupNIF(t *testing.T) {
	f := newFixture(t)
	post := func(body string) *httptest.ResponseRecorder {
		return f.do(t, httptest.NewRequest(http.MethodPost, "/api/nif-lookup", strings.NewReader(body)))
	}

	rec := post(`{"nif":"123456789"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mercearia Lda", decodeBody(t, rec)["company_name"])

	assert.Equal(t, http.StatusNotFound, post(`{"nif":"999999990"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"nif":"12"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, true, out["database"].(map[string]interface{})["available"])

	f.store.pingErr = assert.AnError
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, httptest.NewRequest(http.MethodGet, "/api/faturas", nil))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `despesify_http_requests_total{route="/api/faturas",status="200"} 1`)
}
