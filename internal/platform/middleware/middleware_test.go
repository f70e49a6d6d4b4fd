package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayanat/internal/access"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/requestcontext"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubValidator map[string]int

func (s stubValidator) ValidateToken(token string) (*JWTClaims, error) {
	id, ok := s[token]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return &JWTClaims{UserID: id}, nil
}

type stubCallers struct {
	callers map[int]*access.Caller
	err     error
}

func (s stubCallers) Caller(_ context.Context, id int) (*access.Caller, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.callers[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return c, nil
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	callers := stubCallers{callers: map[int]*access.Caller{3: {UserID: 3, RoleIDs: []int{1}}}}
	validator := stubValidator{"good": 3, "ghost": 9}

	var seen *access.Caller
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = access.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireAuth(validator, callers, quiet)(next)

	t.Run("binds the caller", func(t *testing.T) {
		rec := serve(h, "good")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, 3, seen.UserID)
	})

	for name, token := range map[string]string{"missing": "", "invalid": "bad", "unknown user": "ghost"} {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "unauthorized", body["error"])
		})
	}

	t.Run("loader failure is internal", func(t *testing.T) {
		h := RequireAuth(validator, stubCallers{err: errors.New("db down")}, quiet)(next)
		assert.Equal(t, http.StatusInternalServerError, serve(h, "good").Code)
	})
}

func TestRequestIDPropagates(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.RequestID(r.Context())
	}))

	rec := serve(h, "")
	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", got)
}

func TestRecoveryReturns500(t *testing.T) {
	h := Recovery(quiet)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(h, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal")
}

func TestTraceNamesSpanAfterRouting(t *testing.T) {
	var routed bool
	h := Trace(func(*http.Request) string { routed = true; return "/api/{class}/{id}" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/actor/1", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.True(t, routed)
}
