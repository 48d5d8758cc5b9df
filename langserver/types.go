package langserver

import (
	"encoding/json"
	"strings"
)

// Position is a zero-based position in a text document, matching the LSP
// wire format.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span in a text document
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location points at a range inside a source file
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// Path returns the location's URI as a filesystem path
func (l Location) Path() string {
	return URIToFile(l.URI)
}

// Hover carries hover contents in whichever wire form the server chose.
// Servers answer with MarkupContent, a bare MarkedString, or an array of
// MarkedStrings; Contents stays raw until Text picks it apart.
type Hover struct {
	Contents json.RawMessage `json:"contents"`
	Range    *Range          `json:"range,omitempty"`
}

// Text extracts human-readable text from the hover contents
func (h *Hover) Text() string {
	if h == nil || len(h.Contents) == 0 {
		return ""
	}

	// MarkupContent {kind, value} and the object MarkedString form
	// {language, value} both carry their text in "value"
	var obj struct {
		Kind     string `json:"kind"`
		Language string `json:"language"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(h.Contents, &obj); err == nil && obj.Value != "" {
		return obj.Value
	}

	var str string
	if err := json.Unmarshal(h.Contents, &str); err == nil {
		return str
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(h.Contents, &parts); err == nil {
		texts := make([]string, 0, len(parts))
		for _, part := range parts {
			sub := Hover{Contents: part}
			if text := sub.Text(); text != "" {
				texts = append(texts, text)
			}
		}
		return strings.Join(texts, "\n\n")
	}

	return string(h.Contents)
}
