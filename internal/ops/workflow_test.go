package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/errors"
)

// TestFullWorkflow exercises the complete annotation lifecycle:
// create → list → update → soft-delete → update (gone) → restore → list
func TestFullWorkflow(t *testing.T) {
	database, cfg := setup(t)
	ctx := context.Background()

	// 1. Create
	created, err := Create(ctx, database, cfg, CreateInput{
		StudentID:    "stu-1",
		SubjectID:    "anat-01",
		OriginalText: "plexo braquial",
		Kind:         annotation.KindQuestion,
		Note:         "quais raízes?",
		Color:        annotation.ColorPink,
	})
	require.NoError(t, err)
	id := created.ID

	// 2. List
	list, err := ListActive(ctx, database, ListInput{SubjectID: "anat-01", StudentID: "stu-1"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, id, list.Items[0].ID)

	// 3. Update with the assistant reply
	updated, err := Update(ctx, database, cfg, UpdateInput{ID: id, BotReply: stringPtr("C5 a T1")})
	require.NoError(t, err)
	require.Equal(t, "C5 a T1", *updated.BotReply)

	// 4. Soft-delete
	deleted, err := SoftDelete(ctx, database, id)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)

	list, err = ListActive(ctx, database, ListInput{SubjectID: "anat-01", StudentID: "stu-1"})
	require.NoError(t, err)
	require.Len(t, list.Items, 0)

	// 5. Updating a tombstone is gone, not missing
	_, err = Update(ctx, database, cfg, UpdateInput{ID: id, Note: stringPtr("again")})
	require.Error(t, err)
	var marginErr *errors.MarginError
	require.ErrorAs(t, err, &marginErr)
	require.Equal(t, errors.ErrGone, marginErr.Code)

	// 6. Restore keeps everything that was there
	restored, err := Restore(ctx, database, id)
	require.NoError(t, err)
	require.Nil(t, restored.DeletedAt)
	require.Equal(t, "C5 a T1", *restored.BotReply)

	list, err = ListActive(ctx, database, ListInput{SubjectID: "anat-01", StudentID: "stu-1"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
}
