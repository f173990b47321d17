package slowcontrol

import (
	"fmt"
	"sync"
)

// Variable is one registered slow-control entry.
// Name, type and hooks are fixed at registration; the value is guarded by
// the variable's own lock.
type Variable struct {
	name   string
	typ    Type
	change Hook
	read   Hook

	mu    sync.RWMutex
	value any
}

func newVariable(name string, typ Type, change, read Hook) *Variable {
	return &Variable{
		name:   name,
		typ:    typ,
		change: change,
		read:   read,
		value:  typ.zero(),
	}
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Type returns the declared type.
func (v *Variable) Type() Type { return v.typ }

// HasChangeHook reports whether a change hook was registered.
func (v *Variable) HasChangeHook() bool { return v.change != nil }

// HasReadHook reports whether a read hook was registered.
func (v *Variable) HasReadHook() bool { return v.read != nil }

// Value returns the stored value: float64, string or bool by type.
func (v *Variable) Value() any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// String returns the stored value in wire form. Read hooks are not applied.
func (v *Variable) String() string {
	return encode(v.Value())
}

// Set stores value after checking it against the declared type.
// Integer kinds are accepted for number variables.
func (v *Variable) Set(value any) error {
	n, err := v.typ.normalize(value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", v.name, err)
	}
	v.store(n)
	return nil
}

func (v *Variable) store(value any) {
	v.mu.Lock()
	v.value = value
	v.mu.Unlock()
}

func (v *Variable) info() Info {
	return Info{Name: v.name, Type: v.typ, Value: v.String()}
}

// VariableValue extracts the stored value of v as T.
func VariableValue[T any](v *Variable) (T, error) {
	val, ok := v.Value().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s is %s, not %T", ErrTypeMismatch, v.name, v.typ, zero)
	}
	return val, nil
}
