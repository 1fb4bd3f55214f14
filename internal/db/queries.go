package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/errors"
)

const recordColumns = `
	id, student_id, subject_id, original_text, display_text,
	color, note, type, bot_reply, created_at, updated_at, deleted_at`

// Insert stores a new annotation record.
func Insert(ctx context.Context, q Querier, r *annotation.Record) error {
	query := `
		INSERT INTO annotations (` + recordColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		r.ID, r.StudentID, r.SubjectID, r.OriginalText, r.DisplayText,
		string(r.Color), r.Note, string(r.Kind), toNullString(r.BotReply),
		r.CreatedAt, r.UpdatedAt, toNullInt64(r.DeletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("an annotation with id " + r.ID + " already exists")
		}
		return errors.NewInternal(err)
	}

	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports both PRIMARY KEY and UNIQUE violations this way
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a record by id.
// If includeDeleted is false, tombstones are reported as not found.
func GetByID(ctx context.Context, q Querier, id string, includeDeleted bool) (*annotation.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM annotations WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	r, err := scanRecord(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return r, nil
}

// ListBySubject returns the records of one student on one subject in
// insertion order. Tombstones are included only when includeDeleted is set.
func ListBySubject(ctx context.Context, q Querier, subjectID, studentID string, includeDeleted bool) ([]annotation.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM annotations
		WHERE subject_id = ? AND student_id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := q.QueryContext(ctx, query, subjectID, studentID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	records := []annotation.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return records, nil
}

// UpdateByID writes the mutable fields of an active record and its updated_at.
// Does NOT change: id, student, subject, created_at, deleted_at
func UpdateByID(ctx context.Context, q Querier, r *annotation.Record) error {
	query := `
		UPDATE annotations
		SET original_text = ?, display_text = ?, color = ?, note = ?,
			type = ?, bot_reply = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := q.ExecContext(ctx, query,
		r.OriginalText, r.DisplayText, string(r.Color), r.Note,
		string(r.Kind), toNullString(r.BotReply), r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	return requireOneRow(result, r.ID)
}

// SoftDelete marks an active record as deleted at now.
func SoftDelete(ctx context.Context, q Querier, id string, now int64) error {
	query := `
		UPDATE annotations
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := q.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	return requireOneRow(result, id)
}

// Restore clears the tombstone of a deleted record.
func Restore(ctx context.Context, q Querier, id string, now int64) error {
	query := `
		UPDATE annotations
		SET deleted_at = NULL, updated_at = ?
		WHERE id = ? AND deleted_at IS NOT NULL
	`

	result, err := q.ExecContext(ctx, query, now, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	return requireOneRow(result, id)
}

// GetDocument returns the stored study document JSON and its updated_at.
func GetDocument(ctx context.Context, q Querier, studentID, subjectID string) (string, int64, error) {
	query := `
		SELECT document_json, updated_at FROM study_documents
		WHERE student_id = ? AND subject_id = ?
	`

	var (
		raw       string
		updatedAt int64
	)
	err := q.QueryRowContext(ctx, query, studentID, subjectID).Scan(&raw, &updatedAt)
	if err == sql.ErrNoRows {
		return "", 0, errors.NewNotFound(studentID + "/" + subjectID)
	}
	if err != nil {
		return "", 0, errors.NewInternal(err)
	}

	return raw, updatedAt, nil
}

// UpsertDocument stores the study document, replacing any previous version.
func UpsertDocument(ctx context.Context, q Querier, studentID, subjectID, documentJSON string, now int64) error {
	query := `
		INSERT INTO study_documents (student_id, subject_id, document_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (student_id, subject_id) DO UPDATE SET
			document_json = excluded.document_json,
			updated_at = excluded.updated_at
	`

	if _, err := q.ExecContext(ctx, query, studentID, subjectID, documentJSON, now); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func requireOneRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a single row into a Record.
func scanRecord(row rowScanner) (*annotation.Record, error) {
	var (
		r         annotation.Record
		color     string
		kind      string
		botReply  sql.NullString
		deletedAt sql.NullInt64
	)

	err := row.Scan(
		&r.ID, &r.StudentID, &r.SubjectID, &r.OriginalText, &r.DisplayText,
		&color, &r.Note, &kind, &botReply, &r.CreatedAt, &r.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Color = annotation.Color(color)
	r.Kind = annotation.Kind(kind)
	r.BotReply = fromNullString(botReply)
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Int64
	}

	return &r, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
