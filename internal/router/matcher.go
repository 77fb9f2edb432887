package router

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Pattern compile errors.
var (
	ErrEmptyPattern       = errors.New("empty route pattern")
	ErrPatternNotAbsolute = errors.New("route pattern must start with /")
	ErrEmptyParamName     = errors.New("empty route parameter name")
	ErrDuplicateParam     = errors.New("duplicate route parameter name")
)

// paramPrefix marks a parameter segment in a route pattern.
const paramPrefix = ':'

type segment struct {
	value   string
	isParam bool
}

// PathMatcher matches request paths against a compiled route pattern
// such as "/pods/port-forward/:namespace/:resourceType/:resourceName".
type PathMatcher struct {
	pattern  string
	segments []segment
	params   []string
}

// NewPathMatcher compiles pattern.
func NewPathMatcher(pattern string) (*PathMatcher, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	if pattern[0] != '/' {
		return nil, fmt.Errorf("%w: %q", ErrPatternNotAbsolute, pattern)
	}

	parts := strings.Split(pattern, "/")
	m := &PathMatcher{
		pattern:  pattern,
		segments: make([]segment, 0, len(parts)),
	}

	seen := make(map[string]struct{})
	for _, part := range parts {
		if part == "" || part[0] != paramPrefix {
			m.segments = append(m.segments, segment{value: part})
			continue
		}

		name := part[1:]
		if name == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyParamName, pattern)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w %q in %q", ErrDuplicateParam, name, pattern)
		}
		seen[name] = struct{}{}

		m.segments = append(m.segments, segment{value: name, isParam: true})
		m.params = append(m.params, name)
	}

	return m, nil
}

// Match reports whether path matches the pattern and returns the captured
// parameters. path is the escaped request path; each segment is unescaped
// on its own so an encoded "/" never changes the segment count. A match
// without parameters returns an empty, non-nil map.
func (m *PathMatcher) Match(path string) (matched bool, params map[string]string) {
	if strings.Count(path, "/")+1 != len(m.segments) {
		return false, nil
	}

	params = make(map[string]string, len(m.params))
	rest := path
	for _, seg := range m.segments {
		var raw string
		raw, rest, _ = strings.Cut(rest, "/")

		value := unescapeSegment(raw)
		if seg.isParam {
			params[seg.value] = value
			continue
		}
		if value != seg.value {
			return false, nil
		}
	}

	return true, params
}

// Pattern returns the pattern.
func (m *PathMatcher) Pattern() string {
	return m.pattern
}

// Params returns the parameter names in declaration order.
func (m *PathMatcher) Params() []string {
	return append([]string(nil), m.params...)
}

func unescapeSegment(raw string) string {
	if !strings.Contains(raw, "%") {
		return raw
	}
	v, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return v
}

// MethodMatcher matches a single HTTP method, ignoring case.
type MethodMatcher struct {
	method string
}

// NewMethodMatcher creates a new method matcher.
func NewMethodMatcher(method string) *MethodMatcher {
	return &MethodMatcher{method: strings.ToLower(method)}
}

// Match checks if the method matches. HEAD does not match GET.
func (m *MethodMatcher) Match(method string) bool {
	return strings.EqualFold(m.method, method)
}

// Method returns the lowercase method.
func (m *MethodMatcher) Method() string {
	return m.method
}
