package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/db"
	"github.com/hpungsan/margin/internal/errors"
)

// testSetup creates a temporary database and config for testing.
func testSetup(t *testing.T) (*sql.DB, *config.Config, func()) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}

	cleanup := func() {
		database.Close()
	}
	return database, config.DefaultConfig(), cleanup
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func createArgs(text string) map[string]any {
	return map[string]any{
		"subject_id":    "anat-01",
		"student_id":    "stu-1",
		"original_text": text,
	}
}

// mustCreate stores an annotation through the tool and returns its id.
func mustCreate(t *testing.T, h *Handlers, args map[string]any) string {
	t.Helper()
	result, err := h.HandleCreate(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("HandleCreate: %v", err)
	}
	return parseOutput(t, result)["id"].(string)
}

func TestHandleCreate(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "defaults",
			args:      createArgs("fêmur"),
			wantError: false,
		},
		{
			name: "question with note",
			args: map[string]any{
				"subject_id":    "anat-01",
				"student_id":    "stu-1",
				"original_text": "nervo ulnar",
				"type":          "question",
				"note":          "onde passa?",
				"color":         "blue",
			},
			wantError: false,
		},
		{
			name: "missing text",
			args: map[string]any{
				"subject_id": "anat-01",
				"student_id": "stu-1",
			},
			wantError: true,
			errorCode: "VALIDATION_ERROR",
		},
		{
			name: "unknown color",
			args: map[string]any{
				"subject_id":    "anat-01",
				"student_id":    "stu-1",
				"original_text": "tíbia",
				"color":         "purple",
			},
			wantError: true,
			errorCode: "VALIDATION_ERROR",
		},
		{
			name: "wrong argument type",
			args: map[string]any{
				"subject_id":    "anat-01",
				"student_id":    "stu-1",
				"original_text": 42,
			},
			wantError: true,
			errorCode: "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleCreate(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Fatal("expected error result")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			output := parseOutput(t, result)
			if output["id"] == "" {
				t.Error("expected id in output")
			}
			if output["deleted_at"] != nil {
				t.Errorf("deleted_at = %v, want nil", output["deleted_at"])
			}
		})
	}
}

func TestHandleListAndFetch(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, nil)
	ctx := context.Background()

	first := mustCreate(t, h, createArgs("úmero"))
	mustCreate(t, h, createArgs("rádio"))

	result, _ := h.HandleList(ctx, makeRequest(map[string]any{"subject_id": "anat-01", "student_id": "stu-1"}))
	items := parseOutput(t, result)["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].(map[string]any)["id"] != first {
		t.Error("list is not in creation order")
	}

	result, _ = h.HandleList(ctx, makeRequest(map[string]any{"subject_id": "anat-01"}))
	assertErrorCode(t, result, "VALIDATION_ERROR")

	result, _ = h.HandleFetch(ctx, makeRequest(map[string]any{"id": first}))
	if got := parseOutput(t, result)["original_text"]; got != "úmero" {
		t.Errorf("original_text = %v, want úmero", got)
	}

	result, _ = h.HandleFetch(ctx, makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleUpdate(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, nil)
	ctx := context.Background()
	id := mustCreate(t, h, createArgs("ulna"))

	result, _ := h.HandleUpdate(ctx, makeRequest(map[string]any{"id": id, "note": "osso do antebraço", "color": "green"}))
	output := parseOutput(t, result)
	if output["note"] != "osso do antebraço" || output["color"] != "green" {
		t.Errorf("output = %v", output)
	}

	result, _ = h.HandleUpdate(ctx, makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, "VALIDATION_ERROR")

	result, _ = h.HandleSoftDelete(ctx, makeRequest(map[string]any{"id": id}))
	parseOutput(t, result)

	result, _ = h.HandleUpdate(ctx, makeRequest(map[string]any{"id": id, "note": "x"}))
	assertErrorCode(t, result, "GONE")
}

func TestHandleSoftDeleteRestore(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, nil)
	ctx := context.Background()
	id := mustCreate(t, h, createArgs("escápula"))

	result, _ := h.HandleRestore(ctx, makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, "BAD_REQUEST")

	result, _ = h.HandleSoftDelete(ctx, makeRequest(map[string]any{"id": id}))
	if parseOutput(t, result)["deleted_at"] == nil {
		t.Error("expected deleted_at to be set")
	}

	result, _ = h.HandleSoftDelete(ctx, makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, "CONFLICT")

	result, _ = h.HandleList(ctx, makeRequest(map[string]any{"subject_id": "anat-01", "student_id": "stu-1"}))
	if items := parseOutput(t, result)["items"].([]any); len(items) != 0 {
		t.Errorf("tombstone listed: %v", items)
	}

	result, _ = h.HandleFetch(ctx, makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, "NOT_FOUND")

	result, _ = h.HandleFetch(ctx, makeRequest(map[string]any{"id": id, "include_deleted": true}))
	parseOutput(t, result)

	result, _ = h.HandleRestore(ctx, makeRequest(map[string]any{"id": id}))
	if output := parseOutput(t, result); output["deleted_at"] != nil {
		t.Errorf("deleted_at = %v after restore", output["deleted_at"])
	}
}

func TestHandleDocumentLoad(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, nil)
	result, _ := h.HandleDocumentLoad(context.Background(), makeRequest(map[string]any{"student_id": "stu-1", "subject_id": "anat-01"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleTokenize(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, nil)
	result, _ := h.HandleTokenize(context.Background(), makeRequest(map[string]any{
		"text":      "## Ombro\n\nA *escápula* articula com o úmero.",
		"markdown":  true,
		"terms":     []any{"escápula", "úmero"},
		"annotated": []any{"articula"},
	}))
	output := parseOutput(t, result)

	keywords := output["keywords"].([]any)
	if len(keywords) != 2 || keywords[0] != "escápula" || keywords[1] != "úmero" {
		t.Errorf("keywords = %v", keywords)
	}

	var text string
	marked := 0
	for _, s := range output["spans"].([]any) {
		span := s.(map[string]any)
		text += span["content"].(string)
		if span["annotation"] != nil {
			marked++
		}
	}
	if text != "Ombro\n\nA escápula articula com o úmero." {
		t.Errorf("spans concatenate to %q", text)
	}
	if marked != 1 {
		t.Errorf("annotated spans = %d, want 1", marked)
	}
}

func TestServerRegistration(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	s := NewServer(database, cfg, "test", nil)
	tools := s.ListTools()

	expectedTools := AllToolNames()
	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = []string{"annotation_soft_delete", "annotation_soft_delete", "document_load"}
	s := NewServer(database, cfg, "test", nil)
	tools := s.ListTools()

	if len(tools) != len(toolRegistry)-2 {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry)-2)
	}
	for _, name := range []string{"annotation_soft_delete", "document_load"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTypes = []string{"annotation"}
	s := NewServer(database, cfg, "test", nil)
	tools := s.ListTools()

	if len(tools) != 2 {
		t.Errorf("registered tool count = %d, want 2", len(tools))
	}
	if _, ok := tools["keyword_tokenize"]; !ok {
		t.Error("keyword_tokenize should stay registered")
	}
}

func TestValidateDisabled(t *testing.T) {
	if unknown := ValidateDisabledTools([]string{"annotation_list", "capsule_store"}); len(unknown) != 1 || unknown[0] != "capsule_store" {
		t.Errorf("ValidateDisabledTools() = %v", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"keyword", "capsule"}); len(unknown) != 1 || unknown[0] != "capsule" {
		t.Errorf("ValidateDisabledTypes() = %v", unknown)
	}
	if unknown := ValidateDisabledTools(AllToolNames()); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestGetTypeForTool(t *testing.T) {
	tests := map[string]string{
		"annotation_soft_delete": "annotation",
		"keyword_tokenize":       "keyword",
		"plain":                  "",
	}
	for name, want := range tests {
		if got := GetTypeForTool(name); got != want {
			t.Errorf("GetTypeForTool(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if errObj["message"] != "an internal error occurred" {
		t.Errorf("message leaked: %v", errObj["message"])
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("annotations[2]: %w", errors.NewGone("a1")))

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrGone) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrGone)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in payload: %v", payload)
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error %s, got success: %v", expectedCode, extractErrorMessage(result))
	}
	if code := errorObject(t, result)["code"]; code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
