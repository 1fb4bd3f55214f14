package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/db"
)

func setupTest(t *testing.T) http.Handler {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewHandler(database, config.DefaultConfig(), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, w.Body.String())
	}
	return m
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env, ok := decode(t, w)["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error envelope: %s", w.Body.String())
	}
	return env["code"].(string)
}

func createAnnotation(t *testing.T, h http.Handler) string {
	t.Helper()
	w := do(t, h, "POST", "/summaries/anat-01/annotations",
		`{"student_id":"stu-1","original_text":"nervo ulnar","color":"blue","note":"onde passa?","type":"question"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode(t, w)["id"].(string)
}

func TestCreateAndList(t *testing.T) {
	h := setupTest(t)
	id := createAnnotation(t, h)

	w := do(t, h, "GET", "/summaries/anat-01/annotations?student_id=stu-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	items := decode(t, w)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	item := items[0].(map[string]any)
	if item["id"] != id || item["subject_id"] != "anat-01" || item["type"] != "question" {
		t.Errorf("item = %v", item)
	}
	if item["deleted_at"] != nil {
		t.Errorf("deleted_at = %v, want null", item["deleted_at"])
	}
}

func TestList_RequiresStudent(t *testing.T) {
	h := setupTest(t)

	w := do(t, h, "GET", "/summaries/anat-01/annotations", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Errorf("code = %s, want VALIDATION_ERROR", code)
	}
}

func TestCreate_Invalid(t *testing.T) {
	h := setupTest(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad color", `{"student_id":"stu-1","original_text":"x","color":"purple"}`},
		{"missing text", `{"student_id":"stu-1"}`},
		{"blank text", `{"student_id":"stu-1","original_text":"  \n "}`},
		{"blank student", `{"student_id":"   ","original_text":"escápula"}`},
		{"not json", `{"student_id":`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/summaries/anat-01/annotations", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
			if code := errorCode(t, w); code != "VALIDATION_ERROR" {
				t.Errorf("code = %s, want VALIDATION_ERROR", code)
			}
		})
	}
}

func TestUpdate_Statuses(t *testing.T) {
	h := setupTest(t)
	id := createAnnotation(t, h)

	w := do(t, h, "PUT", "/annotations/"+id, `{"bot_reply":"no sulco do nervo ulnar"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["bot_reply"]; got != "no sulco do nervo ulnar" {
		t.Errorf("bot_reply = %v", got)
	}

	if w := do(t, h, "PUT", "/annotations/missing", `{"note":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}

	if w := do(t, h, "PATCH", "/annotations/"+id+"/soft-delete", ""); w.Code != http.StatusOK {
		t.Fatalf("soft-delete status = %d", w.Code)
	}

	w = do(t, h, "PUT", "/annotations/"+id, `{"note":"x"}`)
	if w.Code != http.StatusGone {
		t.Errorf("update of tombstone status = %d, want 410", w.Code)
	}
	if code := errorCode(t, w); code != "GONE" {
		t.Errorf("code = %s, want GONE", code)
	}
}

func TestSoftDeleteAndRestore_Statuses(t *testing.T) {
	h := setupTest(t)
	id := createAnnotation(t, h)

	if w := do(t, h, "PATCH", "/annotations/"+id+"/restore", ""); w.Code != http.StatusBadRequest {
		t.Errorf("restore of active status = %d, want 400", w.Code)
	}

	w := do(t, h, "PATCH", "/annotations/"+id+"/soft-delete", "")
	if w.Code != http.StatusOK {
		t.Fatalf("soft-delete status = %d", w.Code)
	}
	if decode(t, w)["deleted_at"] == nil {
		t.Error("deleted_at not set")
	}

	if w := do(t, h, "PATCH", "/annotations/"+id+"/soft-delete", ""); w.Code != http.StatusConflict {
		t.Errorf("second soft-delete status = %d, want 409", w.Code)
	}
	if w := do(t, h, "PATCH", "/annotations/missing/soft-delete", ""); w.Code != http.StatusNotFound {
		t.Errorf("soft-delete of unknown status = %d, want 404", w.Code)
	}

	if w := do(t, h, "GET", "/annotations/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("get of tombstone status = %d, want 404", w.Code)
	}
	if w := do(t, h, "GET", "/annotations/"+id+"?include_deleted=true", ""); w.Code != http.StatusOK {
		t.Errorf("get of tombstone with include_deleted status = %d, want 200", w.Code)
	}

	if w := do(t, h, "PATCH", "/annotations/"+id+"/restore", ""); w.Code != http.StatusOK {
		t.Errorf("restore status = %d, want 200", w.Code)
	}
	if w := do(t, h, "GET", "/annotations/"+id, ""); w.Code != http.StatusOK {
		t.Errorf("get after restore status = %d, want 200", w.Code)
	}
}

func TestNoPhysicalDeleteRoute(t *testing.T) {
	h := setupTest(t)
	id := createAnnotation(t, h)

	w := do(t, h, "DELETE", "/annotations/"+id, "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want 405", w.Code)
	}
}

func TestStudyDocument(t *testing.T) {
	h := setupTest(t)
	path := "/students/stu-1/summaries/anat-01/study-document"

	w := do(t, h, "GET", path, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("load before save status = %d, want 404", w.Code)
	}

	body := `{"annotations":[{"id":"a1","original_text":"fêmur","display_text":"fêmur","color":"yellow","note":"","type":"highlight","created_at":1}],
		"keyword_mastery":{"fêmur":60},"personal_notes":{"intro":"ok"},"elapsed_seconds":90}`
	w = do(t, h, "PUT", path, body)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", w.Code, w.Body.String())
	}
	if created := decode(t, w)["created"]; created != float64(1) {
		t.Errorf("created = %v, want 1", created)
	}

	w = do(t, h, "GET", path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("load status = %d", w.Code)
	}
	doc := decode(t, w)
	if doc["elapsed_seconds"] != float64(90) {
		t.Errorf("elapsed_seconds = %v, want 90", doc["elapsed_seconds"])
	}

	// The reconciled record is visible through the per-annotation API
	w = do(t, h, "GET", "/annotations/a1", "")
	if w.Code != http.StatusOK {
		t.Errorf("reconciled record status = %d, want 200", w.Code)
	}
}

func TestTokenize(t *testing.T) {
	h := setupTest(t)

	w := do(t, h, "POST", "/keywords/tokenize",
		`{"text":"O **fêmur** é o maior osso.","markdown":true,"terms":[{"term":"fêmur"}],"annotations":[{"id":"h","original_text":"maior osso"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp TokenizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var b strings.Builder
	annotated := 0
	for _, s := range resp.Spans {
		b.WriteString(s.Content)
		if s.Annotation != nil {
			annotated++
		}
	}
	if b.String() != "O fêmur é o maior osso." {
		t.Errorf("spans concatenate to %q", b.String())
	}
	if len(resp.Keywords) != 1 || resp.Keywords[0] != "fêmur" {
		t.Errorf("keywords = %v, want [fêmur]", resp.Keywords)
	}
	if annotated != 1 {
		t.Errorf("annotated spans = %d, want 1", annotated)
	}
	if resp.Version == "" {
		t.Error("version is empty")
	}
}

func TestSecurityHeadersAndMetrics(t *testing.T) {
	h := setupTest(t)
	do(t, h, "GET", "/healthz", "")

	w := do(t, h, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "margin_http_requests_total") {
		t.Error("metrics output is missing margin_http_requests_total")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
}
