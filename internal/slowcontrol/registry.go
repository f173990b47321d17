package slowcontrol

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps variable names to Variables.
//
// All public methods are thread-safe.
type Registry struct {
	vars     map[string]*Variable
	onChange func(name, value string)
	mu       sync.RWMutex // protects vars and onChange
	logger   Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		vars:   make(map[string]*Variable),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// SetOnChange sets a function called after every committed Change, with the
// variable name and the stored value in wire form. It runs with no lock held.
func (r *Registry) SetOnChange(fn func(name, value string)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Register adds a variable. Either hook may be nil.
// Returns ErrVariableExists if the name is taken; the existing variable is kept.
func (r *Registry) Register(name string, typ Type, change, read Hook) error {
	if name == "" || strings.ContainsAny(name, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}

	r.mu.Lock()
	if _, exists := r.vars[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrVariableExists, name)
	}
	r.vars[name] = newVariable(name, typ, change, read)
	logger := r.logger
	r.mu.Unlock()

	logger.Debug("slow-control variable registered", "name", name, "type", string(typ))
	return nil
}

// Remove deletes a variable.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	if _, ok := r.vars[name]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	delete(r.vars, name)
	logger := r.logger
	r.mu.Unlock()

	logger.Debug("slow-control variable removed", "name", name)
	return nil
}

// Clear removes every variable.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.vars = make(map[string]*Variable)
	r.mu.Unlock()
}

// Len returns the number of registered variables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vars)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.vars))
	for name := range r.vars {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Get returns the variable registered under name.
func (r *Registry) Get(name string) (*Variable, error) {
	r.mu.RLock()
	v, ok := r.vars[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	return v, nil
}

// Value returns the stored value of a variable as T.
// Number variables hold float64, bool and button variables hold bool,
// string and info variables hold string.
func Value[T any](r *Registry, name string) (T, error) {
	v, err := r.Get(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return VariableValue[T](v)
}

// Set stores a typed value directly, bypassing the change hook.
// Used by the owning process to publish readouts.
func (r *Registry) Set(name string, value any) error {
	v, err := r.Get(name)
	if err != nil {
		return err
	}
	return v.Set(value)
}

// Change applies a remote change request. The raw value is passed through
// the change hook if there is one, and the hook's result is what gets
// parsed and stored. It returns the stored value in wire form.
func (r *Registry) Change(name, raw string) (string, error) {
	v, err := r.Get(name)
	if err != nil {
		return "", err
	}
	if v.typ == TypeInfo {
		return "", fmt.Errorf("%w: %s", ErrReadOnly, name)
	}

	proposed := raw
	if v.change != nil {
		out, err := v.change(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrChangeRejected, name, err)
		}
		proposed = out
	}

	value, err := v.typ.parse(proposed)
	if err != nil {
		return "", fmt.Errorf("changing %s: %w", name, err)
	}
	v.store(value)
	stored := encode(value)

	r.mu.RLock()
	notify := r.onChange
	r.mu.RUnlock()
	if notify != nil {
		notify(name, stored)
	}

	return stored, nil
}

// Read returns the value to report for a variable: the read hook's result
// when a hook is registered, otherwise the stored value in wire form.
func (r *Registry) Read(name string) (string, error) {
	v, err := r.Get(name)
	if err != nil {
		return "", err
	}
	current := v.String()
	if v.read == nil {
		return current, nil
	}

	out, err := v.read(current)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return out, nil
}

// Snapshot returns the stored value of every variable, sorted by name.
// Read hooks are not invoked.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	vars := make([]*Variable, 0, len(r.vars))
	for _, v := range r.vars {
		vars = append(vars, v)
	}
	r.mu.RUnlock()

	infos := make([]Info, len(vars))
	for i, v := range vars {
		infos[i] = v.info()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Describe returns a human-readable listing, one variable per line.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, info := range r.Snapshot() {
		fmt.Fprintf(&b, "%s (%s) = %s\n", info.Name, info.Type, info.Value)
	}
	return b.String()
}
