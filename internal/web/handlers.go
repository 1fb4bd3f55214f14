package web

import (
	"database/sql"
	"net/http"

	"github.com/hpungsan/margin/internal/anchor"
	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/keyword"
	"github.com/hpungsan/margin/internal/logger"
	"github.com/hpungsan/margin/internal/ops"
	"github.com/hpungsan/margin/internal/study"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	log *logger.Logger
}

// HandleList handles GET /summaries/{subjectId}/annotations?student_id=...
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListActive(r.Context(), h.db, ops.ListInput{
		SubjectID: r.PathValue("subjectId"),
		StudentID: r.URL.Query().Get("student_id"),
	})
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleCreate handles POST /summaries/{subjectId}/annotations.
// The subject comes from the path; a subject_id in the body is ignored.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input ops.CreateInput
	if err := decodeBody(w, r, &input); err != nil {
		renderError(w, h.log, err)
		return
	}
	input.SubjectID = r.PathValue("subjectId")

	rec, err := ops.Create(r.Context(), h.db, h.cfg, input)
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	annotationMutations.WithLabelValues("create").Inc()
	renderJSON(w, http.StatusCreated, rec)
}

// HandleGet handles GET /annotations/{id}[?include_deleted=true].
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := ops.Get(r.Context(), h.db, ops.GetInput{
		ID:             r.PathValue("id"),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	})
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusOK, rec)
}

// HandleUpdate handles PUT /annotations/{id} with a partial body.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var input ops.UpdateInput
	if err := decodeBody(w, r, &input); err != nil {
		renderError(w, h.log, err)
		return
	}
	input.ID = r.PathValue("id")

	rec, err := ops.Update(r.Context(), h.db, h.cfg, input)
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	annotationMutations.WithLabelValues("update").Inc()
	renderJSON(w, http.StatusOK, rec)
}

// HandleSoftDelete handles PATCH /annotations/{id}/soft-delete.
func (h *Handlers) HandleSoftDelete(w http.ResponseWriter, r *http.Request) {
	rec, err := ops.SoftDelete(r.Context(), h.db, r.PathValue("id"))
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	annotationMutations.WithLabelValues("soft_delete").Inc()
	renderJSON(w, http.StatusOK, rec)
}

// HandleRestore handles PATCH /annotations/{id}/restore.
func (h *Handlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	rec, err := ops.Restore(r.Context(), h.db, r.PathValue("id"))
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	annotationMutations.WithLabelValues("restore").Inc()
	renderJSON(w, http.StatusOK, rec)
}

// HandleGetDocument handles GET /students/{studentId}/summaries/{subjectId}/study-document.
func (h *Handlers) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := ops.LoadDocument(r.Context(), h.db, documentKey(r))
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusOK, doc)
}

// HandlePutDocument handles PUT /students/{studentId}/summaries/{subjectId}/study-document.
func (h *Handlers) HandlePutDocument(w http.ResponseWriter, r *http.Request) {
	var doc study.Document
	if err := decodeBody(w, r, &doc); err != nil {
		renderError(w, h.log, err)
		return
	}

	out, err := ops.SaveDocument(r.Context(), h.db, h.cfg, ops.SaveDocumentInput{
		DocumentKey: documentKey(r),
		Document:    doc,
	})
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	annotationMutations.WithLabelValues("save_document").Inc()
	h.log.Debug("study document saved",
		"student_id", r.PathValue("studentId"),
		"subject_id", r.PathValue("subjectId"),
		"created", out.Created, "updated", out.Updated,
		"restored", out.Restored, "deleted", out.Deleted,
	)
	renderJSON(w, http.StatusOK, out)
}

// TokenizeRequest is the body of POST /keywords/tokenize.
type TokenizeRequest struct {
	Text string `json:"text"`
	// Markdown strips markdown from Text before tokenizing.
	Markdown bool           `json:"markdown,omitempty"`
	Terms    []keyword.Term `json:"terms"`
	// Annotations, when present, are anchored onto the spans.
	Annotations []annotation.TextAnnotation `json:"annotations,omitempty"`
}

// TokenizeResponse is the result of POST /keywords/tokenize.
type TokenizeResponse struct {
	Version  string           `json:"version"`
	Spans    []anchor.Segment `json:"spans"`
	Keywords []string         `json:"keywords"`
}

// HandleTokenize handles POST /keywords/tokenize.
func (h *Handlers) HandleTokenize(w http.ResponseWriter, r *http.Request) {
	var req TokenizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusOK, tokenize(req))
}

func tokenize(req TokenizeRequest) TokenizeResponse {
	text := req.Text
	if req.Markdown {
		text = study.PlainText(text)
	}
	ix := keyword.NewIndex(req.Terms)
	spans := ix.Tokenize(text)
	keywords := keyword.Keywords(spans)
	if keywords == nil {
		keywords = []string{}
	}
	return TokenizeResponse{
		Version:  ix.Version(),
		Spans:    anchor.Split(spans, anchor.NewIndex(req.Annotations)),
		Keywords: keywords,
	}
}

func documentKey(r *http.Request) ops.DocumentKey {
	return ops.DocumentKey{
		StudentID: r.PathValue("studentId"),
		SubjectID: r.PathValue("subjectId"),
	}
}
