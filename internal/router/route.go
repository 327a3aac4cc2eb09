// Package router implements ordered, first-match-wins routing of bot input
// to replies or handler functions.
//
// A Table is an ordered list of Routes. Each Route pairs a Comparator, which
// decides whether the route applies to an input, with a Callback, which
// produces the result. Routes are evaluated in table order and the first
// matching route wins; later matches are never evaluated.
package router

import (
	"regexp"
)

// ComparatorKind identifies which case of the Comparator variant is set.
type ComparatorKind int

const (
	// KindInvalid is the zero value. A comparator of this kind never matches.
	KindInvalid ComparatorKind = iota
	// KindExact matches when the input is a string equal to the comparator text.
	KindExact
	// KindRegex matches when the input is a string accepted by the pattern.
	KindRegex
	// KindPredicate matches when the predicate function returns true.
	KindPredicate
)

// String returns the kind name for logs and metrics labels.
func (k ComparatorKind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindRegex:
		return "regex"
	case KindPredicate:
		return "predicate"
	default:
		return "invalid"
	}
}

// PredicateFunc decides whether a route applies to input. extra is the
// caller-supplied context value passed to Router.Route, forwarded unmodified.
type PredicateFunc func(input, extra any) bool

// Comparator is a tagged variant over the three ways a route can match.
// Build one with Exact, Regex, MustRegex or When.
type Comparator struct {
	kind      ComparatorKind
	text      string
	pattern   *regexp.Regexp
	predicate PredicateFunc
}

// Exact returns a comparator that matches inputs strictly equal to s.
// Non-string inputs never match, so there is no implicit conversion.
func Exact(s string) Comparator {
	return Comparator{kind: KindExact, text: s}
}

// Regex compiles pattern and returns a comparator for it. Flags such as
// case-insensitivity are expressed inline, e.g. "(?i)^hello".
func Regex(pattern string) (Comparator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Comparator{}, err
	}
	return Comparator{kind: KindRegex, pattern: re}, nil
}

// MustRegex is like Regex but panics if the pattern does not compile.
// Intended for route tables declared as package-level literals.
func MustRegex(pattern string) Comparator {
	return Comparator{kind: KindRegex, pattern: regexp.MustCompile(pattern)}
}

// Pattern wraps an already compiled expression. A nil expression yields an
// invalid comparator.
func Pattern(re *regexp.Regexp) Comparator {
	if re == nil {
		return Comparator{}
	}
	return Comparator{kind: KindRegex, pattern: re}
}

// When returns a comparator backed by a predicate. A nil predicate yields an
// invalid comparator.
func When(fn PredicateFunc) Comparator {
	if fn == nil {
		return Comparator{}
	}
	return Comparator{kind: KindPredicate, predicate: fn}
}

// Kind reports which variant is set.
func (c Comparator) Kind() ComparatorKind {
	return c.kind
}

// String returns a short description of the comparator.
func (c Comparator) String() string {
	switch c.kind {
	case KindExact:
		return "exact:" + c.text
	case KindRegex:
		return "regex:" + c.pattern.String()
	case KindPredicate:
		return "predicate"
	default:
		return "invalid"
	}
}

// CallbackKind identifies which case of the Callback variant is set.
type CallbackKind int

const (
	// KindValue callbacks return a fixed value.
	KindValue CallbackKind = iota
	// KindInvokable callbacks compute the result from the input.
	KindInvokable
)

// HandlerFunc computes a route result. For regex routes input is the
// []string of submatches (whole match first); otherwise it is the original
// router input. extra is forwarded unmodified from Router.Route.
type HandlerFunc func(input, extra any) any

// Callback is a tagged variant over a literal result and a handler function.
// The zero Callback is a value callback holding nil.
type Callback struct {
	kind    CallbackKind
	value   any
	handler HandlerFunc
}

// Value returns a callback that yields v verbatim, ignoring input and extra.
func Value(v any) Callback {
	return Callback{kind: KindValue, value: v}
}

// Invoke returns a callback that calls fn. A nil fn behaves like Value(nil).
func Invoke(fn HandlerFunc) Callback {
	if fn == nil {
		return Callback{}
	}
	return Callback{kind: KindInvokable, handler: fn}
}

// Kind reports which variant is set.
func (c Callback) Kind() CallbackKind {
	return c.kind
}

// Route pairs a comparator with a callback.
type Route struct {
	Comparator Comparator
	Callback   Callback
}

// Table is an ordered list of routes. Order is match priority.
type Table []Route

// Add appends a route and returns the table for chaining.
func (t Table) Add(c Comparator, cb Callback) Table {
	return append(t, Route{Comparator: c, Callback: cb})
}

// Reply is shorthand for an exact-string route returning a fixed value.
func Reply(text string, value any) Route {
	return Route{Comparator: Exact(text), Callback: Value(value)}
}

// Handle is shorthand for a route with an invokable callback.
func Handle(c Comparator, fn HandlerFunc) Route {
	return Route{Comparator: c, Callback: Invoke(fn)}
}
