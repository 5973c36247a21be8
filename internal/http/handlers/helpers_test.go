package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/instalist/instalist-server/internal/auth"
	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/http/middleware"
	"github.com/instalist/instalist-server/internal/repo"
	"github.com/instalist/instalist-server/internal/services"
)

// ---------- test DB + stack ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := repo.WithPragmas(fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testEnv struct {
	db     *gorm.DB
	r      *gin.Engine
	tokens *auth.TokenService
	events []string
	// idemGets counts handler-side idempotency lookups.
	idemGets int
}

type countingKeys struct {
	repo.IdempotencyKeys
	gets *int
}

func (k countingKeys) Get(ctx context.Context, scope repo.IdempotencyScope, key string, now time.Time) (*domain.Idempotency, error) {
	*k.gets++
	return k.IdempotencyKeys.Get(ctx, scope, key, now)
}

// newTestEnv mounts the handlers on services backed by an in-memory store,
// with the middleware the routes depend on.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	env := &testEnv{db: db, tokens: tokens}

	keys := repo.IdempotencyKeys{DB: db, TTL: time.Hour}
	h := New(
		services.NewSyncService(db, repo.Store{}),
		services.NewPairingService(db, repo.Store{}, auth.NewBcryptHasher(4)),
		tokens,
		Options{
			Idempotency: countingKeys{IdempotencyKeys: keys, gets: &env.idemGets},
			Stats:       repo.ChangeStatsReader{DB: db},
			ObservePairing: func(event string, err error) {
				env.events = append(env.events, fmt.Sprintf("%s:%v", event, err == nil))
			},
		},
	)

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.BearerAuth(tokens),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, keys.Exists),
	)
	r.POST("/groups", h.CreateGroup)
	r.POST("/groups/:groupid/devices", h.RegisterDevice)
	r.GET("/token", h.IssueToken)
	sec := r.Group("/groups/:groupid", middleware.RequireGroup("groupid"))
	sec.GET("/devices", h.ListDevices)
	h.RegisterKinds(sec)

	env.r = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// session is a paired, authorized device.
type session struct {
	groupID  uint64
	deviceID uint64
	code     string
	bearer   map[string]string
}

func (s session) path(rest string) string {
	return "/groups/" + strconv.FormatUint(s.groupID, 10) + rest
}

func (e *testEnv) pair(t *testing.T) session {
	t.Helper()
	w := e.do(t, http.MethodPost, "/groups", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create group: %d %s", w.Code, w.Body.String())
	}
	var g CreateGroupResponse
	mustDecode(t, w, &g)

	s := session{groupID: g.ID, code: g.PairingCode}
	w = e.do(t, http.MethodPost, s.path("/devices"), RegisterDeviceRequest{
		PairingCode: g.PairingCode, Name: "Phone", Secret: "s3cret",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register device: %d %s", w.Code, w.Body.String())
	}
	var d DeviceResponse
	mustDecode(t, w, &d)
	s.deviceID = d.ID

	w = e.do(t, http.MethodGet, "/token", nil, basic(d.ID, "s3cret"))
	if w.Code != http.StatusOK {
		t.Fatalf("token: %d %s", w.Code, w.Body.String())
	}
	var tok TokenResponse
	mustDecode(t, w, &tok)
	s.bearer = map[string]string{"Authorization": "Bearer " + tok.Token}
	return s
}

func basic(deviceID uint64, secret string) map[string]string {
	cred := strconv.FormatUint(deviceID, 10) + ":" + secret
	return map[string]string{"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(cred))}
}

func with(h map[string]string, k, v string) map[string]string {
	out := map[string]string{k: v}
	for hk, hv := range h {
		out[hk] = hv
	}
	return out
}

func mustDecode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	mustDecode(t, w, &er)
	return er.Code
}
