package openai

import "strings"

// sanitizeText drops NUL bytes and invalid UTF-8 sequences, both common in
// text extracted from PDFs and both rejected by JSON request bodies.
func sanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}
