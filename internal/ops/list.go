package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/db"
	"github.com/hpungsan/margin/internal/errors"
)

// ListInput contains parameters for the ListActive operation.
type ListInput struct {
	SubjectID string `json:"subject_id"`
	StudentID string `json:"student_id"`
}

// ListOutput contains the result of the ListActive operation.
type ListOutput struct {
	Items []annotation.Record `json:"items"`
}

// ListActive returns the non-deleted annotations of a student on a subject in
// insertion order.
func ListActive(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	fields := map[string]string{}
	if strings.TrimSpace(input.SubjectID) == "" {
		fields["subject_id"] = "required"
	}
	if strings.TrimSpace(input.StudentID) == "" {
		fields["student_id"] = "required"
	}
	if len(fields) > 0 {
		return nil, errors.NewValidation("subject_id and student_id are required", fields)
	}

	items, err := db.ListBySubject(ctx, database, input.SubjectID, input.StudentID, false)
	if err != nil {
		return nil, err
	}
	return &ListOutput{Items: items}, nil
}
