// Package routes loads route tables from YAML files.
//
// A file lists routes in priority order; the first matching route wins:
//
//	routes:
//	  - exact: ping
//	    reply: pong
//	  - exact: Hello
//	    fold: true            # Unicode case-insensitive
//	    reply: [Hi!, How can I help?]
//	  - regex: '^weather (?P<city>\w+)$'
//	    reply: Looking up ${city}...
//	  - keywords: [help, menu]
//	    reply: Try "weather Lisbon".
//	  - intent: greet
//	    min_score: 0.6
//	    reply: Hello there!
//
// A route without reply matches silently.
package routes

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/calamars-bot/calamars-go/internal/bot"
	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
	"github.com/calamars-bot/calamars-go/internal/router"
)

// File is the YAML document layout.
type File struct {
	Routes []Spec `yaml:"routes"`
}

// Spec is one route entry. Exactly one of Exact, Regex, Keywords or Intent
// must be set.
type Spec struct {
	Exact    string   `yaml:"exact,omitempty"`
	Fold     bool     `yaml:"fold,omitempty"`
	Regex    string   `yaml:"regex,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`
	Intent   string   `yaml:"intent,omitempty"`
	MinScore float64  `yaml:"min_score,omitempty"`
	Reply    Texts    `yaml:"reply,omitempty"`
}

// Texts accepts either a single string or a list of strings.
type Texts []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Texts) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = Texts{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = list
		return nil
	default:
		return fmt.Errorf("line %d: reply must be a string or a list of strings", node.Line)
	}
}

// Load reads and compiles a route file.
func Load(path string) (router.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routes: read %s: %w", path, err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Parse compiles a YAML route document. Unknown fields are rejected.
func Parse(data []byte) (router.Table, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("routes: decode: %w", err)
	}
	return Compile(f.Routes)
}

// Compile turns specs into a route table, preserving order.
func Compile(specs []Spec) (router.Table, error) {
	table := make(router.Table, 0, len(specs))
	for i, s := range specs {
		route, err := s.compile()
		if err != nil {
			return nil, fmt.Errorf("routes: route %d: %w", i+1, err)
		}
		table = append(table, route)
	}
	return table, nil
}

func (s Spec) compile() (router.Route, error) {
	set := 0
	for _, present := range []bool{s.Exact != "", s.Regex != "", len(s.Keywords) > 0, s.Intent != ""} {
		if present {
			set++
		}
	}
	if set != 1 {
		return router.Route{}, domerrors.NewValidationError("route", "exactly one of exact, regex, keywords or intent is required")
	}
	if s.Fold && s.Exact == "" {
		return router.Route{}, domerrors.NewValidationError("fold", "only applies to exact routes")
	}
	if s.MinScore != 0 && s.Intent == "" {
		return router.Route{}, domerrors.NewValidationError("min_score", "only applies to intent routes")
	}
	if s.MinScore < 0 || s.MinScore > 1 {
		return router.Route{}, domerrors.NewValidationError("min_score", "must be between 0 and 1")
	}

	value := s.Reply.value()
	switch {
	case s.Exact != "" && s.Fold:
		return router.Route{Comparator: FoldEqual(s.Exact), Callback: router.Value(value)}, nil
	case s.Exact != "":
		return router.Route{Comparator: router.Exact(s.Exact), Callback: router.Value(value)}, nil
	case s.Regex != "":
		re, err := regexp.Compile(s.Regex)
		if err != nil {
			return router.Route{}, domerrors.NewValidationError("regex", err.Error())
		}
		callback, err := expandCallback(re, s.Reply)
		if err != nil {
			return router.Route{}, err
		}
		return router.Route{Comparator: router.Pattern(re), Callback: callback}, nil
	case len(s.Keywords) > 0:
		for _, k := range s.Keywords {
			if k == "" {
				return router.Route{}, domerrors.NewValidationError("keywords", "must not contain empty strings")
			}
		}
		return router.Route{Comparator: bot.Keywords(s.Keywords...), Callback: router.Value(value)}, nil
	default:
		comparator := bot.IntentIs(s.Intent)
		if s.MinScore > 0 {
			comparator = bot.IntentAbove(s.Intent, s.MinScore)
		}
		return router.Route{Comparator: comparator, Callback: router.Value(value)}, nil
	}
}

// value is the static route result: nil (silent), a string or a list.
func (t Texts) value() any {
	switch len(t) {
	case 0:
		return nil
	case 1:
		return t[0]
	default:
		return []string(t)
	}
}

// expandCallback fills $1, ${2} and ${name} in the reply from the match
// groups using the regexp template syntax; $$ is a literal dollar sign.
// Replies without a dollar sign stay plain values.
func expandCallback(re *regexp.Regexp, reply Texts) (router.Callback, error) {
	templated := false
	for _, text := range reply {
		if !strings.Contains(text, "$") {
			continue
		}
		templated = true
		if err := checkTemplate(re, text); err != nil {
			return router.Callback{}, err
		}
	}
	if !templated {
		return router.Value(reply.value()), nil
	}

	return router.Invoke(func(input, _ any) any {
		groups, _ := input.([]string)
		src, match := groupIndex(groups)
		out := make(Texts, len(reply))
		for i, text := range reply {
			out[i] = string(re.ExpandString(nil, text, src, match))
		}
		return out.value()
	}), nil
}

// groupIndex lays the submatches end to end so regexp.ExpandString can
// resolve references without the original input.
func groupIndex(groups []string) (string, []int) {
	var b strings.Builder
	match := make([]int, 0, 2*len(groups))
	for _, g := range groups {
		start := b.Len()
		b.WriteString(g)
		match = append(match, start, b.Len())
	}
	return b.String(), match
}

// checkTemplate rejects references to groups the pattern does not have, so
// an unescaped "US$10" fails at load time instead of losing its digits.
func checkTemplate(re *regexp.Regexp, text string) error {
	for _, ref := range templateRefs(text) {
		if n, err := strconv.Atoi(ref); err == nil {
			if n > re.NumSubexp() {
				return domerrors.NewValidationError("reply", fmt.Sprintf("references missing group $%s (write $$ for a literal $)", ref))
			}
			continue
		}
		if re.SubexpIndex(ref) < 0 {
			return domerrors.NewValidationError("reply", fmt.Sprintf("references unknown group ${%s}", ref))
		}
	}
	return nil
}

// templateRefs lists the group references in a regexp template. A "$" not
// followed by a name or "{name}" is literal text, as in regexp.Expand.
func templateRefs(text string) []string {
	var refs []string
	for {
		i := strings.IndexByte(text, '$')
		if i < 0 || i == len(text)-1 {
			return refs
		}
		text = text[i+1:]
		if text[0] == '$' {
			text = text[1:]
			continue
		}
		brace := text[0] == '{'
		if brace {
			text = text[1:]
		}
		n := 0
		for n < len(text) && isNameRune(text[n]) {
			n++
		}
		if n == 0 || (brace && (n >= len(text) || text[n] != '}')) {
			continue
		}
		refs = append(refs, text[:n])
		text = text[n:]
		if brace {
			text = text[1:]
		}
	}
}

func isNameRune(c byte) bool {
	return c == '_' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

// FoldEqual matches string input equal to s under Unicode case folding.
func FoldEqual(s string) router.Comparator {
	want := fold(s)
	return router.When(func(input, _ any) bool {
		text, ok := input.(string)
		return ok && fold(text) == want
	})
}

// fold creates a Caser per call because Casers are not safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}
