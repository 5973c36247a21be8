package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/kinds"
	"github.com/instalist/instalist-server/internal/repo"
)

// Resolve looks up the live record a reference points at. It must be called
// with the enclosing write's transaction so the referenced record cannot be
// deleted before that write commits.
func (s *SyncService) Resolve(ctx context.Context, tx *gorm.DB, groupID uint64, kind domain.Kind, uuid string) (*domain.Record, error) {
	rec, err := s.Repo.GetRecord(ctx, tx, groupID, kind, uuid)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnresolvedReference, kind, uuid)
	}
	return rec, err
}

// resolveReferences checks every reference field present in set.
func (s *SyncService) resolveReferences(ctx context.Context, tx *gorm.DB, groupID uint64, schema *kinds.Schema, set domain.Fields) error {
	for _, f := range schema.References() {
		v, ok := set[f.Name]
		if !ok {
			continue
		}
		uuid, _ := v.(string)
		if uuid == "" {
			return fmt.Errorf("%w: %s must be a uuid", kinds.ErrInvalidUUID, f.Name)
		}
		if _, err := s.Resolve(ctx, tx, groupID, f.Target, uuid); err != nil {
			if errors.Is(err, ErrUnresolvedReference) {
				return fmt.Errorf("%w (field %s)", err, f.Name)
			}
			return err
		}
	}
	return nil
}
