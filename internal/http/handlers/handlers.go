// Package handlers provides the HTTP handlers of the public API: group
// creation and device pairing, token issuance and the per-kind sync routes.
// Handlers validate transport input, call the services and translate their
// results, including conditional list responses and idempotent creates.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/instalist/instalist-server/internal/auth"
	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/repo"
	"github.com/instalist/instalist-server/internal/services"
)

// SyncService is the record engine consumed by the kind routes.
type SyncService interface {
	List(ctx context.Context, groupID uint64, kind domain.Kind, since *time.Time) ([]services.Change, error)
	Get(ctx context.Context, groupID uint64, kind domain.Kind, uuid string) (services.Change, error)
	Create(ctx context.Context, groupID uint64, kind domain.Kind, in services.RecordInput) (services.Change, error)
	Update(ctx context.Context, groupID uint64, kind domain.Kind, in services.RecordInput) (services.Change, error)
	Delete(ctx context.Context, groupID uint64, kind domain.Kind, uuid string) (services.Change, error)
}

// PairingService manages groups, devices and device credentials.
type PairingService interface {
	CreateGroup(ctx context.Context) (*domain.Group, error)
	RegisterDevice(ctx context.Context, groupID uint64, code, name, secret string) (*domain.Device, error)
	Authenticate(ctx context.Context, deviceID uint64, secret string) (*domain.Device, error)
	ListDevices(ctx context.Context, groupID uint64) ([]domain.Device, error)
}

// TokenIssuer signs device tokens.
type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

// IdempotencyStore remembers the outcome of keyed creates.
type IdempotencyStore interface {
	// Get returns the unexpired outcome for key or repo.ErrNotFound.
	Get(ctx context.Context, scope repo.IdempotencyScope, key string, now time.Time) (*domain.Idempotency, error)
	Put(ctx context.Context, scope repo.IdempotencyScope, key string, kind domain.Kind, recordUUID string, status int) error
}

// StatsReader summarizes a kind's change feed for ETag computation.
type StatsReader interface {
	KindChangeStats(ctx context.Context, groupID uint64, kind domain.Kind) (repo.ChangeStats, error)
}

// Options carries the optional collaborators of Handlers.
type Options struct {
	// Idempotency enables replay of keyed creates; nil disables it.
	Idempotency IdempotencyStore
	// Stats enables weak ETags on list responses; nil disables them.
	Stats StatsReader
	// ObservePairing, when set, receives one call per pairing event.
	ObservePairing func(event string, err error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	sync    SyncService
	pairing PairingService
	tokens  TokenIssuer

	idem    IdempotencyStore
	stats   StatsReader
	observe func(event string, err error)
	now     func() time.Time
}

// New constructs Handlers bound to the given services.
func New(sync SyncService, pairing PairingService, tokens TokenIssuer, opts Options) *Handlers {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		sync:    sync,
		pairing: pairing,
		tokens:  tokens,
		idem:    opts.Idempotency,
		stats:   opts.Stats,
		observe: opts.ObservePairing,
		now:     now,
	}
}

// groupID parses the :groupid path parameter and writes a 400 on failure.
func groupID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("groupid"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "group id must be a positive integer")
		return 0, false
	}
	return id, true
}
