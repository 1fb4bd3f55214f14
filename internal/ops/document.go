package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/db"
	"github.com/hpungsan/margin/internal/errors"
	"github.com/hpungsan/margin/internal/study"
)

// DocumentKey addresses one composite study document.
type DocumentKey struct {
	StudentID string `json:"student_id"`
	SubjectID string `json:"subject_id"`
}

func (k DocumentKey) check() error {
	fields := map[string]string{}
	if strings.TrimSpace(k.StudentID) == "" {
		fields["student_id"] = "required"
	}
	if strings.TrimSpace(k.SubjectID) == "" {
		fields["subject_id"] = "required"
	}
	if len(fields) > 0 {
		return errors.NewValidation("student_id and subject_id are required", fields)
	}
	return nil
}

// LoadDocument returns the saved study document. NOT_FOUND when nothing was
// saved for the key yet.
func LoadDocument(ctx context.Context, database *sql.DB, key DocumentKey) (*study.Document, error) {
	if err := key.check(); err != nil {
		return nil, err
	}

	raw, _, err := db.GetDocument(ctx, database, key.StudentID, key.SubjectID)
	if err != nil {
		return nil, err
	}

	var doc study.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("stored document for %s/%s is corrupt: %w", key.StudentID, key.SubjectID, err))
	}
	doc.Normalize()
	return &doc, nil
}

// SaveDocumentInput contains parameters for the SaveDocument operation.
type SaveDocumentInput struct {
	DocumentKey
	Document study.Document
}

// SaveDocumentOutput reports how the per-annotation records were reconciled.
type SaveDocumentOutput struct {
	UpdatedAt int64 `json:"updated_at"`
	Created   int   `json:"created"`
	Updated   int   `json:"updated"`
	Restored  int   `json:"restored"`
	Deleted   int   `json:"deleted"`
}

// SaveDocument stores the whole document (last write wins) and, in the same
// transaction, brings the annotation records of the student on the subject in
// line with it: unknown ids are created, changed ones updated, tombstones
// that reappear are restored, and active records missing from the document
// are soft-deleted.
func SaveDocument(ctx context.Context, database *sql.DB, cfg *config.Config, input SaveDocumentInput) (*SaveDocumentOutput, error) {
	if err := input.check(); err != nil {
		return nil, err
	}
	doc := input.Document.Clone()
	doc.Normalize()
	if err := checkDocument(cfg, doc); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	out, err := reconcile(ctx, tx, input.DocumentKey, doc.Annotations)
	if err != nil {
		return nil, err
	}
	if err := db.UpsertDocument(ctx, tx, input.StudentID, input.SubjectID, string(raw), out.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

func checkDocument(cfg *config.Config, doc study.Document) error {
	if doc.ElapsedSeconds < 0 {
		return errors.NewValidation("elapsed_seconds must not be negative", map[string]string{"elapsed_seconds": "gte"})
	}
	for term, score := range doc.KeywordMastery {
		if score < 0 || score > study.MaxMastery {
			return errors.NewValidation(fmt.Sprintf("keyword_mastery[%q] must be between 0 and %d", term, study.MaxMastery),
				map[string]string{"keyword_mastery": "range"})
		}
	}

	seen := make(map[string]bool, len(doc.Annotations))
	for i, a := range doc.Annotations {
		prefix := fmt.Sprintf("annotations[%d].", i)
		if strings.TrimSpace(a.ID) == "" {
			return errors.NewValidation(prefix+"id is required", map[string]string{prefix + "id": "required"})
		}
		if seen[a.ID] {
			return errors.NewValidation("duplicate annotation id "+a.ID, map[string]string{prefix + "id": "unique"})
		}
		seen[a.ID] = true

		fields, err := fieldErrors(createInputFor(DocumentKey{StudentID: "-", SubjectID: "-"}, a))
		if err != nil {
			return err
		}
		fields = checkNote(a.Note, cfg.NoteMaxChars, fields)
		if len(fields) > 0 {
			prefixed := make(map[string]string, len(fields))
			for k, v := range fields {
				prefixed[prefix+k] = v
			}
			return errors.NewValidation(fmt.Sprintf("annotations[%d] is invalid", i), prefixed)
		}
	}
	return nil
}

func createInputFor(key DocumentKey, a annotation.TextAnnotation) CreateInput {
	return CreateInput{
		ID:           a.ID,
		StudentID:    key.StudentID,
		SubjectID:    key.SubjectID,
		OriginalText: a.OriginalText,
		DisplayText:  a.DisplayText,
		Color:        a.Color,
		Note:         a.Note,
		Kind:         a.Kind,
		BotReply:     a.BotReply,
		CreatedAt:    a.CreatedAt,
	}
}

func reconcile(ctx context.Context, q db.Querier, key DocumentKey, annotations []annotation.TextAnnotation) (*SaveDocumentOutput, error) {
	ts := now()
	out := &SaveDocumentOutput{UpdatedAt: ts}

	existing, err := db.ListBySubject(ctx, q, key.SubjectID, key.StudentID, true)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]annotation.Record, len(existing))
	for _, r := range existing {
		byID[r.ID] = r
	}

	present := make(map[string]bool, len(annotations))
	for _, a := range annotations {
		present[a.ID] = true
		if a.DisplayText == "" {
			a.DisplayText = annotation.DisplayText(a.OriginalText)
		}

		r, ok := byID[a.ID]
		if !ok {
			rec := &annotation.Record{
				TextAnnotation: a,
				StudentID:      key.StudentID,
				SubjectID:      key.SubjectID,
				UpdatedAt:      ts,
			}
			if rec.CreatedAt == 0 {
				rec.CreatedAt = ts
			}
			if err := db.Insert(ctx, q, rec); err != nil {
				if errors.Is(err, errors.ErrConflict) {
					return nil, errors.NewConflict("annotation id " + a.ID + " belongs to another document")
				}
				return nil, err
			}
			out.Created++
			continue
		}

		if r.Deleted() {
			if err := db.Restore(ctx, q, r.ID, ts); err != nil {
				return nil, err
			}
			out.Restored++
		}
		if contentChanged(r.TextAnnotation, a) {
			r.TextAnnotation = withCreatedAt(a, r.CreatedAt)
			r.UpdatedAt = ts
			if err := db.UpdateByID(ctx, q, &r); err != nil {
				return nil, err
			}
			out.Updated++
		}
	}

	for _, r := range existing {
		if r.Deleted() || present[r.ID] {
			continue
		}
		if err := db.SoftDelete(ctx, q, r.ID, ts); err != nil {
			return nil, err
		}
		out.Deleted++
	}

	return out, nil
}

func contentChanged(stored, incoming annotation.TextAnnotation) bool {
	if stored.OriginalText != incoming.OriginalText ||
		stored.DisplayText != incoming.DisplayText ||
		stored.Color != incoming.Color ||
		stored.Note != incoming.Note ||
		stored.Kind != incoming.Kind {
		return true
	}
	switch {
	case stored.BotReply == nil && incoming.BotReply == nil:
		return false
	case stored.BotReply == nil || incoming.BotReply == nil:
		return true
	default:
		return *stored.BotReply != *incoming.BotReply
	}
}

// withCreatedAt keeps the creation time of the stored record.
func withCreatedAt(a annotation.TextAnnotation, createdAt int64) annotation.TextAnnotation {
	a.CreatedAt = createdAt
	return a
}
