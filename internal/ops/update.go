package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/db"
	"github.com/hpungsan/margin/internal/errors"
)

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	ID string `json:"-"`

	OriginalText *string           `json:"original_text,omitempty" validate:"omitempty,notblank"`
	DisplayText  *string           `json:"display_text,omitempty"`
	Color        *annotation.Color `json:"color,omitempty" validate:"omitempty,color"`
	Note         *string           `json:"note,omitempty"`
	Kind         *annotation.Kind  `json:"type,omitempty" validate:"omitempty,annotationtype"`
	BotReply     *string           `json:"bot_reply,omitempty"`
}

func (in UpdateInput) empty() bool {
	return in.OriginalText == nil && in.DisplayText == nil && in.Color == nil &&
		in.Note == nil && in.Kind == nil && in.BotReply == nil
}

// Update applies a partial update to an active annotation.
// A tombstoned annotation is GONE; it must be restored first.
func Update(ctx context.Context, database *sql.DB, cfg *config.Config, input UpdateInput) (*annotation.Record, error) {
	id, err := cleanID(input.ID)
	if err != nil {
		return nil, err
	}
	if input.empty() {
		return nil, errors.NewValidation("at least one editable field must be provided", nil)
	}

	fields, err := fieldErrors(input)
	if err != nil {
		return nil, err
	}
	if input.Note != nil {
		fields = checkNote(*input.Note, cfg.NoteMaxChars, fields)
	}
	if len(fields) > 0 {
		return nil, errors.NewValidation("invalid annotation update", fields)
	}

	r, err := db.GetByID(ctx, database, id, true)
	if err != nil {
		return nil, err
	}
	if r.Deleted() {
		return nil, errors.NewGone(id)
	}

	applyPatch(r, input)
	r.UpdatedAt = now()

	if err := db.UpdateByID(ctx, database, r); err != nil {
		// Deleted between the read and the write
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewGone(id)
		}
		return nil, err
	}
	return r, nil
}

func applyPatch(r *annotation.Record, in UpdateInput) {
	if in.OriginalText != nil {
		r.OriginalText = *in.OriginalText
		if in.DisplayText == nil {
			r.DisplayText = annotation.DisplayText(*in.OriginalText)
		}
	}
	if in.DisplayText != nil {
		r.DisplayText = *in.DisplayText
	}
	if in.Color != nil {
		r.Color = *in.Color
	}
	if in.Note != nil {
		r.Note = *in.Note
	}
	if in.Kind != nil {
		r.Kind = *in.Kind
	}
	if in.BotReply != nil {
		reply := *in.BotReply
		r.BotReply = &reply
	}
}
