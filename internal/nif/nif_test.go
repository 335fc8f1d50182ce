package nif

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/binito/despesify/internal/errors"
	"github.com/binito/despesify/internal/models"
)

type memCache struct {
	companies map[string]*models.Company
	saved     int
}

func (m *memCache) GetCompany(_ context.Context, nif string) (*models.Company, error) {
	c, ok := m.companies[nif]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCache) SaveCompany(_ context.Context, c *models.Company) error {
	m.companies[c.NIF] = c
	m.saved++
	return nil
}

type stubRemote struct {
	name  string
	err   error
	calls int
}

func (s *stubRemote) Lookup(context.Context, string) (string, error) {
	s.calls++
	return s.name, s.err
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("123456789"))
	assert.False(t, Valid("12345678"))
	assert.False(t, Valid("12345678a"))
	assert.False(t, Valid(""))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Continente Hipermercados, S.A.", CleanName("  da Continente Hipermercados, S.A. "))
	assert.Equal(t, "Dona Maria", CleanName("Dona Maria"))
}

func TestService_CacheHit(t *testing.T) {
	cat := 4
	cache := &memCache{companies: map[string]*models.Company{
		"500000000": {NIF: "500000000", Name: "do Talho", CategoryID: &cat},
	}}
	remote := &stubRemote{}

	c, err := NewService(cache, remote, zap.NewNop()).Lookup(context.Background(), "500000000")
	require.NoError(t, err)
	assert.Equal(t, "Talho", c.Name)
	assert.Equal(t, SourceCache, c.Source)
	assert.Equal(t, 4, *c.CategoryID)
	assert.Zero(t, remote.calls)
}

func TestService_RemoteResultIsCached(t *testing.T) {
	cache := &memCache{companies: map[string]*models.Company{}}
	remote := &stubRemote{name: "Padaria Lda"}
	svc := NewService(cache, remote, zap.NewNop())

	c, err := svc.Lookup(context.Background(), "123456789")
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, c.Source)
	assert.Equal(t, 1, cache.saved)

	c, err = svc.Lookup(context.Background(), "123456789")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, c.Source)
	assert.Equal(t, 1, remote.calls)
}

func TestService_Errors(t *testing.T) {
	svc := NewService(nil, &stubRemote{}, zap.NewNop())

	_, err := svc.Lookup(context.Background(), "abc")
	assert.Equal(t, apperrors.ErrBadRequest.Code, apperrors.GetCode(err))

	_, err = svc.Lookup(context.Background(), "123456789")
	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))

	svc = NewService(nil, &stubRemote{err: fmt.Errorf("boom")}, zap.NewNop())
	_, err = svc.Lookup(context.Background(), "123456789")
	assert.True(t, stderrors.Is(err, apperrors.ErrInternal))

	_, err = NewService(nil, nil, nil).Lookup(context.Background(), "123456789")
	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))
}

func TestClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("json"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		switch r.URL.Query().Get("q") {
		case "123456789":
			fmt.Fprint(w, `{"result":"success","records":{"123456789":{"title":"da Mercearia Central"}}}`)
		case "999999999":
			fmt.Fprint(w, `{"result":"error","message":"invalid key"}`)
		default:
			fmt.Fprint(w, `{"result":"success","records":{}}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "k", 0, time.Second, zap.NewNop())

	name, err := c.Lookup(context.Background(), "123456789")
	require.NoError(t, err)
	assert.Equal(t, "Mercearia Central", name)

	name, err = c.Lookup(context.Background(), "111111111")
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = c.Lookup(context.Background(), "999999999")
	assert.Error(t, err)
}

func TestClient_MissingKey(t *testing.T) {
	_, err := NewClient("http://unused/", "", 1, time.Second, nil).Lookup(context.Background(), "123456789")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL+"/", "k", 0, time.Second, nil).Lookup(context.Background(), "123456789")
	assert.Error(t, err)
}
