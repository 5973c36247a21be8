package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/instalist/instalist-server/internal/auth"
)

// stubVerifier accepts the tokens in its map and rejects everything else.
type stubVerifier struct {
	tokens map[string]auth.Principal
	err    error
}

func (s stubVerifier) Verify(tok string) (auth.Principal, error) {
	if p, ok := s.tokens[tok]; ok {
		return p, nil
	}
	if s.err != nil {
		return auth.Principal{}, s.err
	}
	return auth.Principal{}, errors.New("invalid token")
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func do(t *testing.T, r http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}
