package router

// Router resolves inputs against an immutable copy of a route table.
// It holds no mutable state and is safe for concurrent use.
type Router struct {
	routes []Route
}

// New builds a Router over a copy of routes. A nil or empty table yields a
// router that never matches.
func New(routes []Route) *Router {
	cp := make([]Route, len(routes))
	copy(cp, routes)
	return &Router{routes: cp}
}

// Len returns the number of routes, including unreachable ones.
func (r *Router) Len() int {
	if r == nil {
		return 0
	}
	return len(r.routes)
}

// Route returns the result of the first route matching input, or nil when
// nothing matches. extra is forwarded to predicates and handlers as-is.
//
// Panics raised by user predicates or handlers are not recovered.
func (r *Router) Route(input, extra any) any {
	result, _ := r.Match(input, extra)
	return result
}

// Match is like Route but also reports whether a route matched, which
// distinguishes "no route" from a route whose result is nil.
func (r *Router) Match(input, extra any) (any, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.routes {
		route := &r.routes[i]
		if !matches(route.Comparator, input, extra) {
			continue
		}
		return invoke(route, input, extra), true
	}
	return nil, false
}

// First returns the index of the first matching route, or -1.
func (r *Router) First(input, extra any) int {
	if r == nil {
		return -1
	}
	for i := range r.routes {
		if matches(r.routes[i].Comparator, input, extra) {
			return i
		}
	}
	return -1
}

func matches(c Comparator, input, extra any) bool {
	switch c.kind {
	case KindExact:
		s, ok := input.(string)
		return ok && s == c.text
	case KindRegex:
		s, ok := input.(string)
		return ok && c.pattern != nil && c.pattern.MatchString(s)
	case KindPredicate:
		return c.predicate != nil && c.predicate(input, extra)
	default:
		return false
	}
}

func invoke(route *Route, input, extra any) any {
	cb := route.Callback
	if cb.kind != KindInvokable || cb.handler == nil {
		return cb.value
	}
	if route.Comparator.kind == KindRegex {
		// matches already proved input is a string
		groups := route.Comparator.pattern.FindStringSubmatch(input.(string))
		return cb.handler(groups, extra)
	}
	return cb.handler(input, extra)
}
