package extract

import (
	"regexp"
	"strings"
)

var (
	// codeBlockPattern matches fenced blocks with an optional language tag
	codeBlockPattern = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]*[ \t]*\n)?(.*?)```")
	codeSpanPattern  = regexp.MustCompile("`([^`\n]+)`")
	boldPattern      = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
)

// LastCodeBlock returns the body of the last fenced code block
func LastCodeBlock(text string) (string, bool) {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}

// RemoveCodeBlocks strips all fenced code blocks from text
func RemoveCodeBlocks(text string) string {
	return strings.TrimSpace(codeBlockPattern.ReplaceAllString(text, ""))
}

// LastCodeSpan returns the content of the last inline code span outside
// fenced blocks
func LastCodeSpan(text string) (string, bool) {
	matches := codeSpanPattern.FindAllStringSubmatch(RemoveCodeBlocks(text), -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

// BoldSpans returns the contents of **bold** spans in order of appearance
func BoldSpans(text string) []string {
	var spans []string
	for _, m := range boldPattern.FindAllStringSubmatch(text, -1) {
		spans = append(spans, m[1])
	}
	return spans
}
