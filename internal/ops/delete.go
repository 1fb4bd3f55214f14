package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/db"
	"github.com/hpungsan/margin/internal/errors"
)

// SoftDelete marks an annotation as deleted. Deleting a tombstone is a CONFLICT.
func SoftDelete(ctx context.Context, database *sql.DB, id string) (*annotation.Record, error) {
	id, err := cleanID(id)
	if err != nil {
		return nil, err
	}

	r, err := db.GetByID(ctx, database, id, true)
	if err != nil {
		return nil, err
	}
	if r.Deleted() {
		return nil, errors.NewConflict("annotation " + id + " is already deleted")
	}

	ts := now()
	if err := db.SoftDelete(ctx, database, id, ts); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewConflict("annotation " + id + " is already deleted")
		}
		return nil, err
	}

	r.DeletedAt = &ts
	r.UpdatedAt = ts
	return r, nil
}

// Restore clears the tombstone of a deleted annotation. Restoring an active
// annotation is a BAD_REQUEST.
func Restore(ctx context.Context, database *sql.DB, id string) (*annotation.Record, error) {
	id, err := cleanID(id)
	if err != nil {
		return nil, err
	}

	r, err := db.GetByID(ctx, database, id, true)
	if err != nil {
		return nil, err
	}
	if !r.Deleted() {
		return nil, errors.NewBadRequest("annotation " + id + " is not deleted")
	}

	ts := now()
	if err := db.Restore(ctx, database, id, ts); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewBadRequest("annotation " + id + " is not deleted")
		}
		return nil, err
	}

	r.DeletedAt = nil
	r.UpdatedAt = ts
	return r, nil
}
