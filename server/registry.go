package server

import (
	"reflect"
	"regexp"
	"sync"
)

// Matcher decides whether a registration serves a method name.
type Matcher interface {
	Match(method string) bool
	// String returns the canonical text of the matcher. Two pattern
	// matchers with the same text are considered equal.
	String() string
}

type exactMatcher string

// Exact returns a matcher for a single method name.
func Exact(name string) Matcher {
	return exactMatcher(name)
}

func (m exactMatcher) Match(method string) bool { return string(m) == method }
func (m exactMatcher) String() string           { return string(m) }

type patternMatcher struct {
	re   *regexp.Regexp
	text string
}

// Pattern returns a matcher that tests method names against re.
// Patterns are unanchored unless the expression anchors itself.
func Pattern(re *regexp.Regexp) Matcher {
	return &patternMatcher{re: re, text: re.String()}
}

// MustPattern compiles expr and returns a pattern matcher.
// It panics if expr is not a valid regular expression.
func MustPattern(expr string) Matcher {
	return Pattern(regexp.MustCompile(expr))
}

func (m *patternMatcher) Match(method string) bool { return m.re.MatchString(method) }
func (m *patternMatcher) String() string           { return m.text }

// Registration binds a matcher to a handler and its completion mode.
type Registration struct {
	matcher  Matcher
	mode     Mode
	sync     HandlerFunc
	async    AsyncHandlerFunc
	fallback bool
}

// Matcher returns the matcher of the registration. It is nil for the fallback.
func (r *Registration) Matcher() Matcher { return r.matcher }

// Mode returns the completion convention of the handler.
func (r *Registration) Mode() Mode { return r.mode }

// IsFallback reports whether r is the fallback registration.
func (r *Registration) IsFallback() bool { return r.fallback }

func (r *Registration) handlerPointer() uintptr {
	if r.mode == CallbackPair {
		return funcPointer(r.async)
	}
	return funcPointer(r.sync)
}

func funcPointer(fn any) uintptr {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return v.Pointer()
}

// Registry is an ordered collection of method registrations plus an
// optional fallback. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entries  []*Registration
	fallback *Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a synchronous handler. Duplicate matchers are allowed;
// the earliest registration wins during resolution.
func (r *Registry) Register(m Matcher, h HandlerFunc) *Registration {
	return r.add(&Registration{matcher: m, mode: Sync, sync: h})
}

// RegisterAsync appends a callback-pair handler.
func (r *Registry) RegisterAsync(m Matcher, h AsyncHandlerFunc) *Registration {
	return r.add(&Registration{matcher: m, mode: CallbackPair, async: h})
}

func (r *Registry) add(reg *Registration) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, reg)
	return reg
}

// SetFallback installs or replaces the fallback with a synchronous handler.
// The fallback receives the method name as a trailing string param.
func (r *Registry) SetFallback(h HandlerFunc) *Registration {
	return r.setFallback(&Registration{mode: Sync, sync: h, fallback: true})
}

// SetAsyncFallback installs or replaces the fallback with a callback-pair handler.
func (r *Registry) SetAsyncFallback(h AsyncHandlerFunc) *Registration {
	return r.setFallback(&Registration{mode: CallbackPair, async: h, fallback: true})
}

func (r *Registry) setFallback(reg *Registration) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = reg
	return reg
}

// ClearFallback removes the fallback registration, if any.
func (r *Registry) ClearFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = nil
}

// Remove deletes the most recently added registration matching identifier
// and reports whether one was found.
//
// The identifier may be a method name (string), a *regexp.Regexp (compared
// by its text), a Matcher, a *Registration, or a handler function. Handler
// functions are compared by code pointer, so closures created from the same
// function literal are indistinguishable. The fallback is never removed
// here; use ClearFallback.
func (r *Registry) Remove(identifier any) bool {
	match := removalTest(identifier)
	if match == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		if match(r.entries[i]) {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func removalTest(identifier any) func(*Registration) bool {
	switch id := identifier.(type) {
	case nil:
		return nil
	case string:
		return func(reg *Registration) bool {
			m, ok := reg.matcher.(exactMatcher)
			return ok && string(m) == id
		}
	case *regexp.Regexp:
		text := id.String()
		return func(reg *Registration) bool {
			m, ok := reg.matcher.(*patternMatcher)
			return ok && m.text == text
		}
	case *Registration:
		return func(reg *Registration) bool { return reg == id }
	case Matcher:
		return func(reg *Registration) bool {
			return sameMatcherKind(reg.matcher, id) && reg.matcher.String() == id.String()
		}
	default:
		ptr := funcPointer(identifier)
		if ptr == 0 {
			return nil
		}
		return func(reg *Registration) bool { return reg.handlerPointer() == ptr }
	}
}

func sameMatcherKind(a, b Matcher) bool {
	_, aExact := a.(exactMatcher)
	_, bExact := b.(exactMatcher)
	return aExact == bExact
}

// Resolve returns the first registration, in insertion order, whose matcher
// accepts method. When none does, the fallback is returned if installed.
func (r *Registry) Resolve(method string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.entries {
		if reg.matcher.Match(method) {
			return reg, true
		}
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Len returns the number of explicit registrations. The fallback is not counted.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// HasFallback reports whether a fallback is installed.
func (r *Registry) HasFallback() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback != nil
}

// MethodInfo describes a registration for introspection.
type MethodInfo struct {
	Matcher string `json:"matcher"`
	Pattern bool   `json:"pattern"`
	Mode    string `json:"mode"`
}

// Methods returns the explicit registrations in resolution order.
func (r *Registry) Methods() []MethodInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]MethodInfo, 0, len(r.entries))
	for _, reg := range r.entries {
		_, exact := reg.matcher.(exactMatcher)
		result = append(result, MethodInfo{
			Matcher: reg.matcher.String(),
			Pattern: !exact,
			Mode:    reg.mode.String(),
		})
	}
	return result
}
