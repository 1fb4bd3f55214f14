package annotation

// Record is the server-side copy of an annotation. Records are never
// physically deleted; DeletedAt marks a tombstone.
type Record struct {
	TextAnnotation
	StudentID string `json:"student_id"`
	SubjectID string `json:"subject_id"`
	UpdatedAt int64  `json:"updated_at"`
	DeletedAt *int64 `json:"deleted_at"`
}

// Deleted reports whether r is a tombstone.
func (r *Record) Deleted() bool {
	return r.DeletedAt != nil
}
