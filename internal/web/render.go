package web

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/hpungsan/margin/internal/errors"
	"github.com/hpungsan/margin/internal/logger"
)

// maxBodyBytes bounds request bodies; a study document with a few hundred
// annotations fits comfortably.
const maxBodyBytes = 4 << 20

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes the error envelope {"error":{code,message,status,details}}.
// Internal errors are logged and their cause is not exposed.
func renderError(w http.ResponseWriter, log *logger.Logger, err error) {
	mErr := errors.As(err)

	body := map[string]any{
		"code":    string(mErr.Code),
		"message": mErr.Message,
		"status":  mErr.Status,
	}
	if mErr.Code == errors.ErrInternal {
		log.Error("internal error", "error", err)
		body["message"] = "internal error"
	} else if len(mErr.Details) > 0 {
		body["details"] = mErr.Details
	}

	renderJSON(w, mErr.Status, map[string]any{"error": body})
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			return errors.NewValidation("request body too large", map[string]string{"body": "max"})
		case stderrors.Is(err, io.EOF):
			return errors.NewValidation("request body is required", map[string]string{"body": "required"})
		default:
			return errors.NewValidation("invalid JSON body: "+err.Error(), map[string]string{"body": "json"})
		}
	}
	return nil
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
