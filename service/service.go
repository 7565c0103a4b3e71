package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
	"github.com/felixgeelhaar/jsonrpc-go/server"
)

// DefaultDelimiter separates the service name from its members.
const DefaultDelimiter = "."

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Adapter routes "service.member" calls to the methods of registered Go
// values. It serves as the server's fallback handler.
type Adapter struct {
	delimiter string
	fallback  server.AsyncHandlerFunc
	logger    *slog.Logger

	mu       sync.RWMutex
	services map[string]reflect.Value
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDelimiter sets the separator between service and member names.
func WithDelimiter(d string) Option {
	return func(a *Adapter) {
		a.delimiter = d
	}
}

// WithDefault sets the handler for methods whose first segment names no
// registered service. It receives the same params as the adapter,
// including the trailing method name.
func WithDefault(h server.AsyncHandlerFunc) Option {
	return func(a *Adapter) {
		a.fallback = h
	}
}

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates an empty adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		delimiter: DefaultDelimiter,
		logger:    slog.New(slog.DiscardHandler),
		services:  make(map[string]reflect.Value),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register exposes value under name, replacing any earlier value with the
// same name.
func (a *Adapter) Register(name string, value any) error {
	if name == "" {
		return errors.New("service: empty name")
	}
	if a.delimiter != "" && strings.Contains(name, a.delimiter) {
		return fmt.Errorf("service: name %q contains delimiter %q", name, a.delimiter)
	}
	v := reflect.ValueOf(value)
	if !v.IsValid() || isNil(v) {
		return fmt.Errorf("service: nil value for %q", name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.services[name] = v
	return nil
}

// Unregister removes the service registered under name.
func (a *Adapter) Unregister(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.services[name]
	delete(a.services, name)
	return ok
}

// Services returns the registered service names in sorted order.
func (a *Adapter) Services() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.services))
	for name := range a.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install sets the adapter as srv's fallback handler.
func (a *Adapter) Install(srv *server.Server) *server.Registration {
	return srv.SetAsyncFallback(a.Handle)
}

// Handle is a fallback handler: the last param is the method name and the
// rest are the call's arguments.
func (a *Adapter) Handle(ctx context.Context, params protocol.Params, succeed func(any), fail func(error)) {
	n := params.Len()
	var method string
	if n == 0 || params.Decode(n-1, &method) != nil {
		fail(protocol.NewInternalError("service adapter installed as a non-fallback handler"))
		return
	}
	args := params[:n-1]

	parts := []string{method}
	if a.delimiter != "" {
		parts = strings.Split(method, a.delimiter)
	}

	a.mu.RLock()
	svc, ok := a.services[parts[0]]
	a.mu.RUnlock()
	if !ok {
		if a.fallback != nil {
			a.fallback(ctx, params, succeed, fail)
			return
		}
		fail(protocol.NewMethodNotFound(method))
		return
	}

	fn, ok := resolve(svc, parts[1:])
	if !ok || fn.Kind() != reflect.Func || fn.IsNil() {
		a.logger.DebugContext(ctx, "service member not found", slog.String("method", method))
		fail(protocol.NewMethodNotFound(method))
		return
	}

	call(ctx, fn, args, succeed, fail)
}

// resolve walks path through methods, exported struct fields and
// string-keyed map entries.
func resolve(v reflect.Value, path []string) (reflect.Value, bool) {
	for _, name := range path {
		next, ok := member(v, name)
		if !ok {
			return reflect.Value{}, false
		}
		v = next
	}
	return v, true
}

func member(v reflect.Value, name string) (reflect.Value, bool) {
	if name == "" {
		return reflect.Value{}, false
	}
	for _, candidate := range candidates(name) {
		if m := v.MethodByName(candidate); m.IsValid() {
			return m, true
		}
	}

	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		for _, candidate := range candidates(name) {
			f, ok := v.Type().FieldByName(candidate)
			if ok && f.IsExported() {
				return v.FieldByIndex(f.Index), true
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		if e := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key())); e.IsValid() {
			return e, true
		}
	}
	return reflect.Value{}, false
}

// candidates lists name and, when it starts lowercase, its exported spelling.
func candidates(name string) []string {
	r, size := utf8.DecodeRuneInString(name)
	if !unicode.IsLower(r) {
		return []string{name}
	}
	return []string{name, string(unicode.ToUpper(r)) + name[size:]}
}

func call(ctx context.Context, fn reflect.Value, params protocol.Params, succeed func(any), fail func(error)) {
	defer func() {
		if r := recover(); r != nil {
			fail(protocol.FromPanic(r))
		}
	}()

	args, err := bind(ctx, fn.Type(), params)
	if err != nil {
		fail(err)
		return
	}

	var out []reflect.Value
	if fn.Type().IsVariadic() {
		out = fn.CallSlice(args)
	} else {
		out = fn.Call(args)
	}

	result, err := results(fn.Type(), out)
	if err != nil {
		fail(err)
		return
	}
	if d, ok := result.(server.Deferred); ok && !isNil(reflect.ValueOf(result)) {
		d.Then(succeed, fail)
		return
	}
	succeed(result)
}

// bind decodes positional params into the function's arguments. A leading
// context.Context parameter receives ctx; a variadic tail absorbs the
// remaining params.
func bind(ctx context.Context, t reflect.Type, params protocol.Params) ([]reflect.Value, error) {
	var args []reflect.Value
	first := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		args = append(args, reflect.ValueOf(ctx))
		first = 1
	}

	fixed := t.NumIn() - first
	if t.IsVariadic() {
		fixed--
	}
	if params.Len() < fixed || (!t.IsVariadic() && params.Len() > fixed) {
		return nil, protocol.NewInvalidParams(fmt.Sprintf("expected %d params, got %d", fixed, params.Len()))
	}

	for i := 0; i < fixed; i++ {
		arg := reflect.New(t.In(first + i))
		if err := params.Decode(i, arg.Interface()); err != nil {
			return nil, protocol.NewInvalidParams(fmt.Sprintf("param %d: %v", i, err))
		}
		args = append(args, arg.Elem())
	}

	if t.IsVariadic() {
		sliceType := t.In(t.NumIn() - 1)
		rest := reflect.MakeSlice(sliceType, 0, params.Len()-fixed)
		for i := fixed; i < params.Len(); i++ {
			elem := reflect.New(sliceType.Elem())
			if err := params.Decode(i, elem.Interface()); err != nil {
				return nil, protocol.NewInvalidParams(fmt.Sprintf("param %d: %v", i, err))
			}
			rest = reflect.Append(rest, elem.Elem())
		}
		args = append(args, rest)
	}
	return args, nil
}

// results maps a function's return values onto a result and an error.
// Supported shapes are (), (T), (error) and (T, error).
func results(t reflect.Type, out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if t.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		if t.Out(1) != errorType {
			break
		}
		if err := asError(out[1]); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
	return nil, protocol.NewInternalError(fmt.Sprintf("unsupported signature %s", t))
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}
