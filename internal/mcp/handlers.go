package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/margin/internal/anchor"
	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/errors"
	"github.com/hpungsan/margin/internal/keyword"
	"github.com/hpungsan/margin/internal/logger"
	"github.com/hpungsan/margin/internal/ops"
	"github.com/hpungsan/margin/internal/study"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	log *logger.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, log *logger.Logger) *Handlers {
	return &Handlers{db: db, cfg: cfg, log: logger.OrNop(log)}
}

// IDRequest addresses a single annotation.
type IDRequest struct {
	ID string `json:"id"`
}

// FetchRequest represents the arguments for annotation_fetch.
type FetchRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// UpdateRequest represents the arguments for annotation_update.
type UpdateRequest struct {
	ID string `json:"id"`
	ops.UpdateInput
}

// TokenizeRequest represents the arguments for keyword_tokenize.
type TokenizeRequest struct {
	Text      string   `json:"text"`
	Markdown  bool     `json:"markdown,omitempty"`
	Terms     []string `json:"terms"`
	Annotated []string `json:"annotated,omitempty"`
}

// TokenizeResult is the output of keyword_tokenize.
type TokenizeResult struct {
	Spans    []anchor.Segment `json:"spans"`
	Keywords []string         `json:"keywords"`
}

// HandleList handles the annotation_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ListInput](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ListActive(ctx, h.db, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFetch handles the annotation_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Get(ctx, h.db, ops.GetInput{ID: input.ID, IncludeDeleted: input.IncludeDeleted})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCreate handles the annotation_create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.CreateInput](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Create(ctx, h.db, h.cfg, input)
	if err != nil {
		return errorResult(err), nil
	}
	h.log.Debug("annotation created", "id", result.ID, "subject_id", result.SubjectID)
	return successResult(result)
}

// HandleUpdate handles the annotation_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	patch := input.UpdateInput
	patch.ID = input.ID

	result, err := ops.Update(ctx, h.db, h.cfg, patch)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSoftDelete handles the annotation_soft_delete tool call.
func (h *Handlers) HandleSoftDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SoftDelete(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRestore handles the annotation_restore tool call.
func (h *Handlers) HandleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Restore(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentLoad handles the document_load tool call.
func (h *Handlers) HandleDocumentLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.DocumentKey](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.LoadDocument(ctx, h.db, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTokenize handles the keyword_tokenize tool call.
func (h *Handlers) HandleTokenize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TokenizeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	text := input.Text
	if input.Markdown {
		text = study.PlainText(text)
	}
	spans := keyword.Tokenize(text, keyword.TermsFromStrings(input.Terms...))

	annotated := make([]annotation.TextAnnotation, 0, len(input.Annotated))
	for _, phrase := range input.Annotated {
		annotated = append(annotated, annotation.TextAnnotation{OriginalText: phrase, Kind: annotation.KindHighlight})
	}

	keywords := keyword.Keywords(spans)
	if keywords == nil {
		keywords = []string{}
	}
	return successResult(TokenizeResult{
		Spans:    anchor.Split(spans, anchor.NewIndex(annotated)),
		Keywords: keywords,
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	mErr := errors.As(err)

	errorObj := map[string]any{
		"code":    mErr.Code,
		"message": mErr.Message,
		"status":  mErr.Status,
	}
	if mErr.Code == errors.ErrInternal {
		errorObj["message"] = "an internal error occurred"
	} else if mErr.Details != nil {
		errorObj["details"] = mErr.Details
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
