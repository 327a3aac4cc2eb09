package bot

import (
	"regexp"
	"slices"
	"strings"
)

// BuildKeywordRegex creates a regex matching keywords at the START of text.
// Keywords are sorted by length (longest first) to prevent partial matches
// and quoted, so they never act as patterns. Panics if keywords is empty.
//
// A keyword must be followed by whitespace or be the entire text, so that
// "weather" does not fire on "weatherman".
//
// Example:
//
//	MatchKeyword(BuildKeywordRegex([]string{"help", "help me"}), "help me now") // "help me"
//	MatchKeyword(BuildKeywordRegex([]string{"help"}), "HELP")                  // "HELP"
//	MatchKeyword(BuildKeywordRegex([]string{"help"}), "helpful")               // ""
func BuildKeywordRegex(keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		panic("BuildKeywordRegex: keywords cannot be empty")
	}

	sorted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		sorted = append(sorted, regexp.QuoteMeta(k))
	}
	slices.SortStableFunc(sorted, func(a, b string) int {
		return len(b) - len(a)
	})

	// Group 1 captures the keyword; (?:\s|$) requires whitespace or the end after it
	pattern := "(?i)^(" + strings.Join(sorted, "|") + ")(?:\\s|$)"
	return regexp.MustCompile(pattern)
}

// MatchKeyword returns the keyword matched by regex at the start of text,
// or "" when there is none.
func MatchKeyword(regex *regexp.Regexp, text string) string {
	match := regex.FindStringSubmatch(text)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// ExtractArgument returns the text after a leading keyword, trimmed.
// Handlers of Keywords routes use it as ExtractArgument(text, groups[1]).
func ExtractArgument(text, keyword string) string {
	text = strings.TrimSpace(text)
	if keyword == "" {
		return text
	}
	if len(text) >= len(keyword) && strings.EqualFold(text[:len(keyword)], keyword) {
		return strings.TrimSpace(text[len(keyword):])
	}
	return text
}

// normalizeWhitespace trims text and collapses inner whitespace runs to a
// single space.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
