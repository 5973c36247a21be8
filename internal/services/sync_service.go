// Package services – SyncService
//
// This file implements the sync engine. It is written once for every kind:
// the kind's schema from the kinds package supplies field defaults, required
// fields and references. Each write runs in a single transaction so that an
// identity moves Absent -> Live -> Tombstoned with no intermediate state
// observable by other requests.
//
// Observability: public methods open OpenTelemetry spans and report an
// outcome through the optional Observe hook.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/kinds"
	"github.com/instalist/instalist-server/internal/repo"
	"github.com/instalist/instalist-server/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SyncRepo defines the record and tombstone operations required by
// SyncService. Every method accepts a handle that may be a transaction.
type SyncRepo interface {
	GetRecord(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string) (*domain.Record, error)
	CreateRecord(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string, fields domain.Fields, updatedAt time.Time) (*domain.Record, error)
	UpdateRecordIfNotNewer(ctx context.Context, db *gorm.DB, id uint64, fields domain.Fields, updatedAt time.Time) error
	DeleteRecord(ctx context.Context, db *gorm.DB, id uint64) error
	ListRecordsChangedSince(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, since *time.Time) ([]domain.Record, error)

	GetTombstone(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string) (*domain.Tombstone, error)
	CreateTombstone(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string, deletedAt time.Time) (*domain.Tombstone, error)
	ListTombstonesChangedSince(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, since *time.Time) ([]domain.Tombstone, error)
}

// Change is one entry of a kind's change feed. Tombstone entries carry only
// UUID, LastChanged and Deleted.
type Change struct {
	UUID        string
	Fields      domain.Fields
	LastChanged time.Time
	Deleted     bool
}

// RecordInput is a decoded write.
type RecordInput struct {
	UUID string
	// LastChanged is the client's change time; nil means now.
	LastChanged *time.Time
	Patch       kinds.Patch
}

// Sync operation names reported to Observe.
const (
	OpList   = "list"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// SyncService applies creates, updates and deletes to group-scoped records
// and serves the incremental change feed.
type SyncService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the record/tombstone repository.
	Repo SyncRepo

	// Now returns the server time; nil means time.Now.
	Now func() time.Time
	// Observe, when set, receives one call per operation with its outcome.
	Observe func(kind domain.Kind, op, outcome string)
}

// NewSyncService constructs a SyncService using the wall clock.
func NewSyncService(db *gorm.DB, r SyncRepo) *SyncService {
	return &SyncService{DB: db, Repo: r}
}

// List returns every record of kind changed strictly after since, and every
// tombstone deleted strictly after since, ordered by change time then uuid.
// A nil since returns the full feed.
func (s *SyncService) List(ctx context.Context, groupID uint64, kind domain.Kind, since *time.Time) (out []Change, err error) {
	ctx, span := s.start(ctx, "List", groupID, kind, "")
	defer func() { s.finish(span, kind, OpList, "", err) }()

	if _, err = schemaFor(kind); err != nil {
		return nil, err
	}

	// Read-only, so the transaction begins deferred and does not queue behind writers.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recs, err := s.Repo.ListRecordsChangedSince(ctx, tx, groupID, kind, since)
		if err != nil {
			return err
		}
		tombs, err := s.Repo.ListTombstonesChangedSince(ctx, tx, groupID, kind, since)
		if err != nil {
			return err
		}
		out = make([]Change, 0, len(recs)+len(tombs))
		for i := range recs {
			out = append(out, recordChange(&recs[i]))
		}
		for i := range tombs {
			out = append(out, tombstoneChange(&tombs[i]))
		}
		return nil
	}, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastChanged.Equal(out[j].LastChanged) {
			return out[i].LastChanged.Before(out[j].LastChanged)
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

// Get returns the live record for an identity, ErrGone if it was deleted or
// ErrNotFound if it never existed.
func (s *SyncService) Get(ctx context.Context, groupID uint64, kind domain.Kind, uuid string) (ch Change, err error) {
	ctx, span := s.start(ctx, "Get", groupID, kind, uuid)
	defer func() { s.finish(span, kind, OpGet, uuid, err) }()

	if _, err = schemaFor(kind); err != nil {
		return Change{}, err
	}
	rec, err := s.Repo.GetRecord(ctx, s.DB, groupID, kind, uuid)
	if err == nil {
		return recordChange(rec), nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return Change{}, err
	}
	err = s.absentErr(ctx, s.DB, groupID, kind, uuid)
	return Change{}, err
}

// Create inserts a new live record. It fails with ErrConflict when the
// identity is live or tombstoned, ErrUnresolvedReference when a reference
// does not resolve and ErrInvalidDate for a timestamp after the server clock.
func (s *SyncService) Create(ctx context.Context, groupID uint64, kind domain.Kind, in RecordInput) (ch Change, err error) {
	ctx, span := s.start(ctx, "Create", groupID, kind, in.UUID)
	defer func() { s.finish(span, kind, OpCreate, in.UUID, err) }()

	schema, err := schemaFor(kind)
	if err != nil {
		return Change{}, err
	}
	if in.UUID == "" {
		err = fmt.Errorf("%w: uuid is required", kinds.ErrInvalidUUID)
		return Change{}, err
	}
	ts, err := s.writeTime(in.LastChanged)
	if err != nil {
		return Change{}, err
	}

	fields := schema.Apply(schema.Defaults(), in.Patch)
	if err = schema.CheckRequired(fields); err != nil {
		return Change{}, err
	}

	var rec *domain.Record
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.Repo.GetRecord(ctx, tx, groupID, kind, in.UUID); err == nil {
			return fmt.Errorf("%w: %s %s already exists", ErrConflict, kind, in.UUID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		// Tombstoned identities are never recreated, whatever the timestamps.
		if _, err := s.Repo.GetTombstone(ctx, tx, groupID, kind, in.UUID); err == nil {
			return fmt.Errorf("%w: %s %s was deleted", ErrConflict, kind, in.UUID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		if err := s.resolveReferences(ctx, tx, groupID, schema, in.Patch.Set); err != nil {
			return err
		}

		created, err := s.Repo.CreateRecord(ctx, tx, groupID, kind, in.UUID, fields, ts)
		if errors.Is(err, repo.ErrDuplicate) {
			return fmt.Errorf("%w: %s %s already exists", ErrConflict, kind, in.UUID)
		}
		if err != nil {
			return err
		}
		rec = created
		return nil
	})
	if err != nil {
		return Change{}, err
	}
	return recordChange(rec), nil
}

// Update applies a partial change to a live record. Members absent from the
// patch keep their stored value. A write older than the stored change time
// fails with ErrConflict and leaves the record untouched.
func (s *SyncService) Update(ctx context.Context, groupID uint64, kind domain.Kind, in RecordInput) (ch Change, err error) {
	ctx, span := s.start(ctx, "Update", groupID, kind, in.UUID)
	defer func() { s.finish(span, kind, OpUpdate, in.UUID, err) }()

	schema, err := schemaFor(kind)
	if err != nil {
		return Change{}, err
	}

	var out Change
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.Repo.GetRecord(ctx, tx, groupID, kind, in.UUID)
		if errors.Is(err, repo.ErrNotFound) {
			return s.absentErr(ctx, tx, groupID, kind, in.UUID)
		}
		if err != nil {
			return err
		}
		// The identity's state decides first; dates only matter for live records.
		ts, err := s.writeTime(in.LastChanged)
		if err != nil {
			return err
		}
		if ts.Before(rec.UpdatedAt) {
			return fmt.Errorf("%w: stored change at %s is newer", ErrConflict, utils.FormatTime(rec.UpdatedAt))
		}

		if err := s.resolveReferences(ctx, tx, groupID, schema, in.Patch.Set); err != nil {
			return err
		}
		merged := schema.Apply(rec.Fields, in.Patch)
		if err := schema.CheckRequired(merged); err != nil {
			return err
		}

		err = s.Repo.UpdateRecordIfNotNewer(ctx, tx, rec.ID, merged, ts)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: record changed concurrently", ErrConflict)
		}
		if err != nil {
			return err
		}
		out = Change{UUID: rec.UUID, Fields: merged, LastChanged: ts}
		return nil
	})
	if err != nil {
		return Change{}, err
	}
	return out, nil
}

// Delete replaces a live record with a tombstone dated at the later of now
// and the record's change time. Deleting a tombstoned identity fails with
// ErrGone; callers treat that as success-equivalent.
func (s *SyncService) Delete(ctx context.Context, groupID uint64, kind domain.Kind, uuid string) (ch Change, err error) {
	ctx, span := s.start(ctx, "Delete", groupID, kind, uuid)
	defer func() { s.finish(span, kind, OpDelete, uuid, err) }()

	if _, err = schemaFor(kind); err != nil {
		return Change{}, err
	}

	var out Change
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.Repo.GetRecord(ctx, tx, groupID, kind, uuid)
		if errors.Is(err, repo.ErrNotFound) {
			return s.absentErr(ctx, tx, groupID, kind, uuid)
		}
		if err != nil {
			return err
		}

		deletedAt := utils.Normalize(s.now())
		if deletedAt.Before(rec.UpdatedAt) {
			deletedAt = rec.UpdatedAt
		}

		if err := s.Repo.DeleteRecord(ctx, tx, rec.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrGone
			}
			return err
		}
		tb, err := s.Repo.CreateTombstone(ctx, tx, groupID, kind, uuid, deletedAt)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrGone
		}
		if err != nil {
			return err
		}
		out = tombstoneChange(tb)
		return nil
	})
	if err != nil {
		return Change{}, err
	}
	return out, nil
}

// absentErr distinguishes a deleted identity from one that never existed.
func (s *SyncService) absentErr(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string) error {
	_, err := s.Repo.GetTombstone(ctx, db, groupID, kind, uuid)
	switch {
	case err == nil:
		return ErrGone
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}

// writeTime resolves the client change time, rejecting times after now.
func (s *SyncService) writeTime(ts *time.Time) (time.Time, error) {
	now := utils.Normalize(s.now())
	if ts == nil {
		return now, nil
	}
	t := utils.Normalize(*ts)
	if t.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s is in the future", ErrInvalidDate, utils.FormatTime(t))
	}
	return t, nil
}

func (s *SyncService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SyncService) start(ctx context.Context, name string, groupID uint64, kind domain.Kind, uuid string) (context.Context, trace.Span) {
	tr := otel.Tracer("services/SyncService")
	attrs := []attribute.KeyValue{
		attribute.Int64("group.id", int64(groupID)),
		attribute.String("record.kind", string(kind)),
	}
	if uuid != "" {
		attrs = append(attrs, attribute.String("record.uuid", uuid))
	}
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *SyncService) finish(span trace.Span, kind domain.Kind, op, uuid string, err error) {
	outcome := Outcome(err)
	if outcome == OutcomeError {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.String("sync.outcome", outcome))
	span.End()

	log.Debug().
		Str("kind", string(kind)).
		Str("op", op).
		Str("uuid", uuid).
		Str("outcome", outcome).
		Msg("sync")

	if s.Observe != nil {
		s.Observe(kind, op, outcome)
	}
}

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeBadRequest = "bad_request"
	OutcomeNotFound   = "not_found"
	OutcomeGone       = "gone"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// Outcome classifies err into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrConflict):
		return OutcomeConflict
	case errors.Is(err, ErrGone):
		return OutcomeGone
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrUnresolvedReference),
		errors.Is(err, kinds.ErrInvalidData),
		errors.Is(err, kinds.ErrInvalidUUID):
		return OutcomeBadRequest
	default:
		return OutcomeError
	}
}

func schemaFor(kind domain.Kind) (*kinds.Schema, error) {
	schema, ok := kinds.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return schema, nil
}

func recordChange(rec *domain.Record) Change {
	return Change{UUID: rec.UUID, Fields: rec.Fields, LastChanged: rec.UpdatedAt}
}

func tombstoneChange(tb *domain.Tombstone) Change {
	return Change{UUID: tb.UUID, LastChanged: tb.DeletedAt, Deleted: true}
}
