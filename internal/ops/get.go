package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/db"
)

// GetInput contains parameters for the Get operation.
type GetInput struct {
	ID             string
	IncludeDeleted bool
}

// Get returns one annotation. Tombstones are NOT_FOUND unless IncludeDeleted.
func Get(ctx context.Context, database *sql.DB, input GetInput) (*annotation.Record, error) {
	id, err := cleanID(input.ID)
	if err != nil {
		return nil, err
	}
	return db.GetByID(ctx, database, id, input.IncludeDeleted)
}
