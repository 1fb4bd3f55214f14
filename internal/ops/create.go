package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/db"
	"github.com/hpungsan/margin/internal/errors"
)

// CreateInput is the payload of a new annotation.
type CreateInput struct {
	// ID is optional; a ULID is generated when empty.
	ID           string           `json:"id,omitempty" validate:"omitempty,max=64"`
	StudentID    string           `json:"student_id" validate:"required,notblank,max=128"`
	SubjectID    string           `json:"subject_id" validate:"required,notblank,max=128"`
	OriginalText string           `json:"original_text" validate:"required,notblank"`
	DisplayText  string           `json:"display_text,omitempty"`
	Color        annotation.Color `json:"color" validate:"color"`
	Note         string           `json:"note"`
	Kind         annotation.Kind  `json:"type" validate:"annotationtype"`
	BotReply     *string          `json:"bot_reply,omitempty"`
	// CreatedAt is optional (Unix ms); defaults to now.
	CreatedAt int64 `json:"created_at,omitempty" validate:"gte=0"`
}

// Create stores a new active annotation. Color defaults to yellow and type to
// highlight; DisplayText is derived from OriginalText when empty.
func Create(ctx context.Context, database *sql.DB, cfg *config.Config, input CreateInput) (*annotation.Record, error) {
	r, err := newRecord(cfg, input)
	if err != nil {
		return nil, err
	}
	if err := db.Insert(ctx, database, r); err != nil {
		return nil, err
	}
	return r, nil
}

// newRecord validates input and builds the record to insert.
func newRecord(cfg *config.Config, input CreateInput) (*annotation.Record, error) {
	input.ID = strings.TrimSpace(input.ID)
	if input.Color == "" {
		input.Color = annotation.ColorYellow
	}
	if input.Kind == "" {
		input.Kind = annotation.KindHighlight
	}

	fields, err := fieldErrors(input)
	if err != nil {
		return nil, err
	}
	fields = checkNote(input.Note, cfg.NoteMaxChars, fields)
	if len(fields) > 0 {
		return nil, errors.NewValidation("invalid annotation", fields)
	}

	id := input.ID
	if id == "" {
		id, err = generateULID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	ts := now()
	createdAt := input.CreatedAt
	if createdAt == 0 {
		createdAt = ts
	}
	display := input.DisplayText
	if strings.TrimSpace(display) == "" {
		display = annotation.DisplayText(input.OriginalText)
	}

	return &annotation.Record{
		TextAnnotation: annotation.TextAnnotation{
			ID:           id,
			OriginalText: input.OriginalText,
			DisplayText:  display,
			Color:        input.Color,
			Note:         input.Note,
			Kind:         input.Kind,
			BotReply:     input.BotReply,
			CreatedAt:    createdAt,
		},
		StudentID: input.StudentID,
		SubjectID: input.SubjectID,
		UpdatedAt: ts,
	}, nil
}
