package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/margin/internal/errors"
)

// decode converts the tool arguments into T by round-tripping them through
// JSON, so request structs share their tags with the HTTP API.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewValidation("arguments are not JSON: "+err.Error(), nil)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, errors.NewValidation("invalid arguments: "+err.Error(), map[string]string{"arguments": "json"})
	}
	return result, nil
}
