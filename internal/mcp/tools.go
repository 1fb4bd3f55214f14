package mcp

import "github.com/mark3labs/mcp-go/mcp"

var listToolDef = mcp.NewTool("annotation_list",
	mcp.WithDescription("List the active annotations of one student on one summary, oldest first. Soft-deleted annotations are never listed."),
	mcp.WithString("subject_id", mcp.Required(), mcp.Description("Summary (subject) identifier")),
	mcp.WithString("student_id", mcp.Required(), mcp.Description("Student identifier")),
)

var fetchToolDef = mcp.NewTool("annotation_fetch",
	mcp.WithDescription("Fetch one annotation by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Annotation id")),
	mcp.WithBoolean("include_deleted", mcp.Description("Return the annotation even if it is soft-deleted")),
)

var createToolDef = mcp.NewTool("annotation_create",
	mcp.WithDescription("Create a highlight, note or question on a passage of a summary. The passage is anchored by its exact text."),
	mcp.WithString("subject_id", mcp.Required(), mcp.Description("Summary (subject) identifier")),
	mcp.WithString("student_id", mcp.Required(), mcp.Description("Student identifier")),
	mcp.WithString("original_text", mcp.Required(), mcp.Description("The selected passage, exactly as rendered")),
	mcp.WithString("id", mcp.Description("Client-chosen id; generated when omitted")),
	mcp.WithString("color", mcp.Enum("yellow", "blue", "green", "pink"), mcp.Description("Highlight color (default yellow)")),
	mcp.WithString("type", mcp.Enum("highlight", "note", "question"), mcp.Description("Annotation type (default highlight)")),
	mcp.WithString("note", mcp.Description("Note text, or the question for type=question")),
)

var updateToolDef = mcp.NewTool("annotation_update",
	mcp.WithDescription("Partially update an active annotation. Soft-deleted annotations must be restored first."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Annotation id")),
	mcp.WithString("original_text", mcp.Description("New anchored passage; display text is re-derived")),
	mcp.WithString("color", mcp.Enum("yellow", "blue", "green", "pink")),
	mcp.WithString("type", mcp.Enum("highlight", "note", "question")),
	mcp.WithString("note", mcp.Description("New note text")),
	mcp.WithString("bot_reply", mcp.Description("Assistant reply to a question")),
)

var softDeleteToolDef = mcp.NewTool("annotation_soft_delete",
	mcp.WithDescription("Soft-delete an annotation. It disappears from lists but can be restored."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Annotation id")),
)

var restoreToolDef = mcp.NewTool("annotation_restore",
	mcp.WithDescription("Restore a soft-deleted annotation."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Annotation id")),
)

var documentLoadToolDef = mcp.NewTool("document_load",
	mcp.WithDescription("Load a student's saved study document for a summary: annotations, keyword mastery, personal notes and study time."),
	mcp.WithString("student_id", mcp.Required(), mcp.Description("Student identifier")),
	mcp.WithString("subject_id", mcp.Required(), mcp.Description("Summary (subject) identifier")),
)

var tokenizeToolDef = mcp.NewTool("keyword_tokenize",
	mcp.WithDescription("Split text into plain-text and keyword spans using a keyword dictionary. Longer terms win; matching is case-insensitive on word boundaries."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to tokenize")),
	mcp.WithBoolean("markdown", mcp.Description("Strip markdown formatting before tokenizing")),
	mcp.WithArray("terms", mcp.Required(), mcp.WithStringItems(),
		mcp.Description("Keyword dictionary terms, in priority order"),
	),
	mcp.WithArray("annotated", mcp.WithStringItems(),
		mcp.Description("Annotated passages to mark on the spans"),
	),
)
