package kernel

import (
	"fmt"
	"reflect"
)

// CallableRegistry resolves the function names apply_request payloads carry
// to concrete Go functions, per SPEC_FULL §4.2.3's direct-call semantics:
// "f deserializes to a concrete callable value... looked up by name, bound
// via a reflect-based invoker". There is no code-mobility story here (the
// target language cannot ship a closure over the wire the way the original
// pickled one) so every callable an apply_request might name has to be
// registered up front by whatever wires the kernel together.
type CallableRegistry struct {
	funcs map[string]reflect.Value
}

// NewCallableRegistry constructs an empty registry.
func NewCallableRegistry() *CallableRegistry {
	return &CallableRegistry{funcs: make(map[string]reflect.Value)}
}

// Register binds name to fn, which must be a function value.
func (r *CallableRegistry) Register(name string, fn any) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic(fmt.Sprintf("kernel: Register(%q): not a function", name))
	}
	r.funcs[name] = v
}

// Lookup returns the registered function value for name.
func (r *CallableRegistry) Lookup(name string) (reflect.Value, bool) {
	v, ok := r.funcs[name]
	return v, ok
}

// Invoke calls the named function with args, and, if the function's final
// parameter is map[string]any, appends kwargs as that trailing argument
// (the closest direct-call analogue of **kwargs available via reflection).
// It returns the first return value, or nil if the function returns
// nothing.
func (r *CallableRegistry) Invoke(name string, args []any, kwargs map[string]any) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("kernel: no callable registered as %q", name)
	}
	fnType := fn.Type()

	callArgs := make([]any, len(args))
	copy(callArgs, args)
	if len(kwargs) > 0 && fnType.NumIn() > 0 && fnType.In(fnType.NumIn()-1) == reflect.TypeOf(map[string]any(nil)) {
		callArgs = append(callArgs, kwargs)
	}

	if !fnType.IsVariadic() && len(callArgs) != fnType.NumIn() {
		return nil, fmt.Errorf("kernel: %q expects %d arguments, got %d", name, fnType.NumIn(), len(callArgs))
	}

	in := make([]reflect.Value, len(callArgs))
	for i, a := range callArgs {
		in[i] = reflect.ValueOf(a)
	}

	out := fn.Call(in)
	if len(out) == 0 {
		return nil, nil
	}

	last := out[len(out)-1]
	lastIsErr := last.Type().Implements(errType)
	if lastIsErr && !last.IsNil() {
		return nil, last.Interface().(error)
	}

	switch {
	case lastIsErr && len(out) == 1:
		return nil, nil
	case lastIsErr:
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), nil
	}
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
