// Package bind implements the computation graph's binding resolver: given a
// node's function specification and its predecessors' current values, it
// assembles the positional/variadic/keyword call shape and invokes the
// underlying function.
//
// Go erases function parameter names at compile time, so this package cannot
// introspect arbitrary functions for their formal parameter names (see
// Introspect). Everything else — the four-bucket resolution algorithm, the
// zero-argument shortcut, and the explicit Args/Kwds override — is a direct
// calling-convention match for a dynamic **kwargs-style dispatcher.
package bind

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Role is the parameter role an upstream node fills on a binding.
type Role int

const (
	// Positional fills the next positional argument.
	Positional Role = iota
	// Keyword fills a named keyword argument.
	Keyword
	// VariadicTail is appended to the function's variadic positional tail.
	VariadicTail
	// VariadicKeyword is appended to the function's variadic keyword bag.
	VariadicKeyword
)

// String renders the role for debug output.
func (r Role) String() string {
	switch r {
	case Positional:
		return "positional"
	case Keyword:
		return "keyword"
	case VariadicTail:
		return "variadic-tail"
	case VariadicKeyword:
		return "variadic-keyword"
	default:
		return "unknown-role"
	}
}

// Param is one (role, source) entry in a binding's declaration-ordered list.
type Param struct {
	Role Role
	// Name is the keyword name; only meaningful for Keyword and
	// VariadicKeyword roles.
	Name string
	// Source is the upstream node key this parameter is wired to.
	Source any
}

// Call is the call-shape handed to a node function that opts into the
// explicit *Call calling convention, the stand-in for a dynamic
// `f(*positional, *args, **keyword, **kwds)` call: Go has no native
// variadic-keyword call syntax, so a function that needs the Keyword or
// VariadicKeyword buckets must take this shape explicitly instead.
type Call struct {
	Positional []any
	Args       []any          // variadic positional tail
	Keyword    map[string]any // keyword-bound values
	Kwds       map[string]any // variadic-keyword-bound values
}

// Func is the explicit calling-convention function type. A Descriptor holding
// a Func and no Params is a legal zero-predecessor binding, with no edges at
// all. Introspect cannot discover a Func's sources, so flowgraph's AddNode
// rejects a Func given without explicit Args/ArgsTail/Kwds/KwdsTail
// (ErrAmbiguousBinding).
type Func func(*Call) (any, error)

// FunctionSpecifier separates a bare callable from a richer specifier that
// also exposes its name and signature for diagnostics.
type FunctionSpecifier interface {
	// Func returns the underlying callable: either a bind.Func or a plain
	// Go func value.
	Func() any
	// Name returns the function's name as reported by runtime reflection.
	Name() string
	// Signature returns the reflect.Type of the underlying callable, or
	// nil if the callable is a bind.Func (which has a fixed signature).
	Signature() reflect.Type
}

type localFunctionSpecifier struct {
	fn   any
	name string
	typ  reflect.Type // nil for bind.Func
}

func (l *localFunctionSpecifier) Func() any                { return l.fn }
func (l *localFunctionSpecifier) Name() string              { return l.name }
func (l *localFunctionSpecifier) Signature() reflect.Type   { return l.typ }

// Wrap builds a FunctionSpecifier from a callable: pass a bare func value
// (bind.Func or any other Go func), or a FunctionSpecifier you already
// built, and get back a FunctionSpecifier either way.
func Wrap(fn any) (FunctionSpecifier, error) {
	if fn == nil {
		return nil, fmt.Errorf("bind: nil function specifier")
	}
	if spec, ok := fn.(FunctionSpecifier); ok {
		return spec, nil
	}
	if f, ok := fn.(Func); ok {
		return &localFunctionSpecifier{fn: f, name: runtimeName(f)}, nil
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("bind: unexpected function specifier: %#v", fn)
	}
	return &localFunctionSpecifier{fn: fn, name: runtimeName(fn), typ: v.Type()}, nil
}

func runtimeName(fn any) string {
	v := reflect.ValueOf(fn)
	if p := v.Pointer(); p != 0 {
		if rf := runtime.FuncForPC(p); rf != nil {
			return rf.Name()
		}
	}
	return v.Type().String()
}

// Descriptor is the computation descriptor: a function reference plus the
// ordered list of (role, source) entries describing how each input is wired.
type Descriptor struct {
	Spec   FunctionSpecifier
	Params []Param
	// ArgsTail and KwdsTail record which source keys came in via the
	// variadic passthrough collections (`args=[...]`/`kwds={...}`), kept
	// only for introspection/debugging; resolution itself reads Params.
	ArgsTail []any
	KwdsTail map[string]any
}

// NumPredecessors returns the number of distinct source keys this binding
// reads from, which is exactly the node's predecessor count.
func (d *Descriptor) NumPredecessors() int {
	seen := make(map[any]bool, len(d.Params))
	for _, p := range d.Params {
		seen[p.Source] = true
	}
	return len(seen)
}

// Lookup resolves a source key to its current value. The second return value
// is false if the source isn't available (e.g. not Uptodate).
type Lookup func(source any) (any, bool)

// Resolve assembles the four call buckets from a descriptor's declaration-
// ordered parameter list. Multiple unresolvable sources are aggregated
// rather than stopping at the first one, matching the accumulate-every-
// failure idiom used throughout this module.
func Resolve(d *Descriptor, lookup Lookup) (*Call, error) {
	call := &Call{
		Positional: make([]any, 0, len(d.Params)),
		Args:       make([]any, 0),
		Keyword:    make(map[string]any),
		Kwds:       make(map[string]any),
	}
	var errs *multierror.Error
	for _, p := range d.Params {
		v, ok := lookup(p.Source)
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("bind: source node %v is not available", p.Source))
			continue
		}
		switch p.Role {
		case Positional:
			call.Positional = append(call.Positional, v)
		case VariadicTail:
			call.Args = append(call.Args, v)
		case Keyword:
			call.Keyword[p.Name] = v
		case VariadicKeyword:
			call.Kwds[p.Name] = v
		default:
			errs = multierror.Append(errs, fmt.Errorf("bind: unknown role %v for source %v", p.Role, p.Source))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return call, nil
}

// signatureCache memoizes reflect introspection of plain Go func values so
// repeated bindings of the same function don't re-walk its reflect.Type.
var signatureCache, _ = lru.New(256)

type signatureInfo struct {
	numIn     int
	variadic  bool
	singleArg reflect.Type // non-nil when NumIn()==1 and not variadic
}

func inspect(t reflect.Type) signatureInfo {
	if cached, ok := signatureCache.Get(t); ok {
		return cached.(signatureInfo)
	}
	info := signatureInfo{numIn: t.NumIn(), variadic: t.IsVariadic()}
	if info.numIn == 1 && !info.variadic {
		info.singleArg = t.In(0)
	}
	signatureCache.Add(t, info)
	return info
}

// ErrAmbiguousBinding is returned when a multi-parameter plain Go function is
// declared without explicit Args/Kwds and isn't eligible for the
// single-struct-argument introspection convenience (see Introspect).
var ErrAmbiguousBinding = fmt.Errorf("bind: function requires explicit Args or Kwds")

// Introspect discovers a binding's parameter sources without an explicit
// Args/Kwds list. Go cannot recover a function's formal parameter names, so
// automatic discovery only works for the one case reflection *can* answer —
// a function with a single non-variadic struct parameter, whose exported
// field names (or `bind:"..."` tags) become the keyword sources. Every other
// shape requires the caller to pass explicit Args/Kwds.
func Introspect(spec FunctionSpecifier) ([]Param, error) {
	if _, ok := spec.Func().(Func); ok {
		return nil, ErrAmbiguousBinding // *Call functions always need explicit wiring
	}
	t := spec.Signature()
	if t == nil {
		return nil, ErrAmbiguousBinding
	}
	info := inspect(t)
	if info.numIn == 0 {
		return nil, nil // zero-argument function: legal with no edges
	}
	if info.singleArg == nil || info.singleArg.Kind() != reflect.Struct {
		return nil, ErrAmbiguousBinding
	}
	var params []Param
	for i := 0; i < info.singleArg.NumField(); i++ {
		field := info.singleArg.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		name := field.Name
		if tag := field.Tag.Get("bind"); tag != "" {
			name = tag
		}
		params = append(params, Param{Role: Keyword, Name: name, Source: name})
	}
	return params, nil
}

// Invoke calls the underlying function with the resolved call shape. For a
// bind.Func it passes the Call struct directly (the only convention that
// supports the Keyword/VariadicKeyword buckets). For a plain Go func it
// flattens Positional+Args into the reflect call. When the caller supplied
// keyword-bucket values instead, the function must take exactly one
// argument: a struct, whose fields are decoded from the merged keyword
// buckets via mapstructure rather than hand-rolled per-field reflection, or
// a scalar, which is called directly with the single keyword value bound to
// it (a plain `func(x int) int` bound via `Kwds: {"x": source}` calls
// through with that one value, it is never routed through mapstructure).
// A panic in either kind of function is recovered and returned as an error.
func Invoke(spec FunctionSpecifier, call *Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("bind: panic invoking %s: %v", spec.Name(), r)
		}
	}()

	fn := spec.Func()
	if f, ok := fn.(Func); ok {
		return f(call)
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	info := inspect(t)

	if len(call.Keyword) > 0 || len(call.Kwds) > 0 {
		if info.singleArg == nil || len(call.Positional) > 0 || len(call.Args) > 0 {
			return nil, fmt.Errorf("bind: %s does not accept keyword arguments", spec.Name())
		}
		merged := make(map[string]any, len(call.Keyword)+len(call.Kwds))
		for k, val := range call.Keyword {
			merged[k] = val
		}
		for k, val := range call.Kwds {
			merged[k] = val
		}

		if info.singleArg.Kind() != reflect.Struct {
			// A single scalar parameter bound via exactly one keyword
			// source is just a plain call with that one value — there's
			// no struct to decode into.
			if len(merged) != 1 {
				return nil, fmt.Errorf("bind: %s takes a single non-struct argument and accepts exactly one keyword value, got %d", spec.Name(), len(merged))
			}
			var only any
			for _, val := range merged {
				only = val
			}
			return callReflect(v, []reflect.Value{coerce(only, t, 0)})
		}

		argPtr := reflect.New(info.singleArg)
		dec, derr := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName: "bind",
			Result:  argPtr.Interface(),
		})
		if derr != nil {
			return nil, errors.Wrapf(derr, "bind: building decoder for %s", spec.Name())
		}
		if derr := dec.Decode(merged); derr != nil {
			return nil, errors.Wrapf(derr, "bind: decoding keyword arguments for %s", spec.Name())
		}
		return callReflect(v, []reflect.Value{argPtr.Elem()})
	}

	args := make([]any, 0, len(call.Positional)+len(call.Args))
	args = append(args, call.Positional...)
	args = append(args, call.Args...)
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = coerce(a, t, i)
	}
	return callReflect(v, in)
}

// coerce wraps one argument for reflect.Value.Call. A nil value becomes the
// zero value of the function's parameter type at position i (the variadic
// element type past the last fixed parameter); any other value is passed
// through unchanged. No type conversion is made: an `int` value flowing into
// a `float64` parameter makes the reflect call panic, which Invoke recovers
// into an error.
func coerce(a any, t reflect.Type, i int) reflect.Value {
	var pt reflect.Type
	if t.IsVariadic() && i >= t.NumIn()-1 {
		pt = t.In(t.NumIn() - 1).Elem()
	} else if i < t.NumIn() {
		pt = t.In(i)
	}
	v := reflect.ValueOf(a)
	if pt != nil && a == nil {
		return reflect.Zero(pt)
	}
	if pt != nil && v.IsValid() && v.Type().AssignableTo(pt) {
		return v
	}
	return v
}

func callReflect(v reflect.Value, in []reflect.Value) (any, error) {
	out := v.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if e, ok := out[0].Interface().(error); ok {
			return nil, e
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		if e, _ := last.Interface().(error); last.Type().Implements(errType) && !last.IsNil() {
			return nil, e
		}
		if len(out) == 2 {
			return out[0].Interface(), nil
		}
		vals := make([]any, len(out))
		for i, o := range out {
			vals[i] = o.Interface()
		}
		return vals, nil
	}
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
