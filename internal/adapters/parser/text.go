package parser

import "context"

// TextParser passes plain text documents through unchanged.
type TextParser struct{}

// NewTextParser creates a plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse returns data as text.
func (TextParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	return string(data), nil
}

// SupportedFormats returns formats this parser handles.
func (TextParser) SupportedFormats() []string {
	return []string{"txt", "md", "markdown"}
}
