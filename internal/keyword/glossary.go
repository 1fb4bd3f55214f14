package keyword

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// LoadGlossary reads a glossary from r. Accepted shapes:
//
//	[{"term": "fêmur", "definition": "..."}, ...]
//	{"terms": [{"term": "fêmur"}, ...]}
//	["fêmur", "nervo ulnar", ...]
//
// Order is preserved; it is the tie-break order used by Tokenize.
func LoadGlossary(r io.Reader) ([]Term, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var wrapped struct {
		Terms []Term `json:"terms"`
	}
	if data[0] == '{' {
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse glossary object: %w", err)
		}
		return wrapped.Terms, nil
	}

	var terms []Term
	if err := json.Unmarshal(data, &terms); err == nil {
		return terms, nil
	}

	var plain []string
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("failed to parse glossary as object, term list or string list: %w", err)
	}
	terms = make([]Term, len(plain))
	for i, s := range plain {
		terms[i] = Term{Term: s}
	}
	return terms, nil
}

// TermsFromStrings wraps bare strings as Terms.
func TermsFromStrings(ss ...string) []Term {
	terms := make([]Term, len(ss))
	for i, s := range ss {
		terms[i] = Term{Term: s}
	}
	return terms
}
