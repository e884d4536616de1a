package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Call is a function-call-shaped span found in LLM output
type Call struct {
	Name   string
	Args   string // Raw text between the outer parentheses
	Offset int    // Byte offset of the name in the scanned text
}

// Text renders the call as it appeared
func (c Call) Text() string {
	return c.Name + "(" + c.Args + ")"
}

var kwargPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)

// callPattern builds a matcher for "name(" with any of the given names
func callPattern(names []string) *regexp.Regexp {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	// Longer names first so that prefixes never shadow a longer action
	sort.Slice(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\(`)
}

// FindCalls scans text for calls to the named functions. Parentheses are
// matched with awareness of quotes and backslash escapes; calls without a
// closing parenthesis are dropped. Calls nested inside another call's
// arguments are not reported separately.
func FindCalls(text string, names []string) []Call {
	if len(names) == 0 {
		return nil
	}

	var calls []Call
	end := 0
	for _, loc := range callPattern(names).FindAllStringSubmatchIndex(text, -1) {
		start, open := loc[0], loc[1]-1
		if start < end {
			continue
		}
		closeIdx := matchParen(text, open)
		if closeIdx < 0 {
			continue
		}
		calls = append(calls, Call{
			Name:   text[loc[2]:loc[3]],
			Args:   text[open+1 : closeIdx],
			Offset: start,
		})
		end = closeIdx + 1
	}
	return calls
}

// matchParen returns the index of the parenthesis closing the one at open,
// or -1 if it is never closed
func matchParen(text string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(text); i++ {
		ch := text[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			if opensQuote(text, i) {
				quote = ch
			}
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// opensQuote reports whether the quote character at i starts a quoted
// token. An apostrophe inside a word, as in "Obama's", does not.
func opensQuote(s string, i int) bool {
	if i == 0 {
		return true
	}
	switch s[i-1] {
	case '(', ',', '=', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// SplitArguments splits a raw argument list on top-level commas. Commas
// inside quotes, nested parentheses or <...> image tokens do not split.
// An empty trailing token is dropped.
func SplitArguments(args string) []string {
	var (
		tokens  []string
		current strings.Builder
		quote   byte
		depth   int
		angle   bool
	)

	flush := func() {
		tokens = append(tokens, strings.TrimSpace(current.String()))
		current.Reset()
	}

	for i := 0; i < len(args); i++ {
		ch := args[i]
		if quote != 0 {
			current.WriteByte(ch)
			switch ch {
			case '\\':
				if i+1 < len(args) {
					i++
					current.WriteByte(args[i])
				}
			case quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			if opensQuote(args, i) {
				quote = ch
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case '<':
			angle = true
		case '>':
			angle = false
		case ',':
			if depth == 0 && !angle {
				flush()
				continue
			}
		}
		current.WriteByte(ch)
	}
	flush()

	if len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// ParseArguments separates positional and keyword arguments and unquotes
// their values
func ParseArguments(args string) ([]string, map[string]string) {
	var positional []string
	kwargs := make(map[string]string)

	for _, tok := range SplitArguments(args) {
		if tok == "" {
			continue
		}
		if !isQuoted(tok) {
			if m := kwargPattern.FindStringSubmatch(tok); m != nil {
				kwargs[m[1]] = Unquote(strings.TrimSpace(m[2]))
				continue
			}
		}
		positional = append(positional, Unquote(tok))
	}
	return positional, kwargs
}

// Unquote strips matching surrounding quotes and resolves backslash escapes
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if !isQuoted(s) {
		return s
	}
	inner := s[1 : len(s)-1]

	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
			switch inner[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(inner[i])
			}
			continue
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	q := s[0]
	return (q == '"' || q == '\'') && s[len(s)-1] == q
}
