package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
)

type ParamType string

const (
	TypeString ParamType = "str"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeBool   ParamType = "bool"
)

// Parameter describes one tunable controller field.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Prompt      string    `json:"prompt"`
	Default     any       `json:"default"`
	Required    bool      `json:"required"`
	IsAdvanced  bool      `json:"is_advanced"`
	MinValue    *float64  `json:"min_value,omitempty"`
	MaxValue    *float64  `json:"max_value,omitempty"`
	ValidValues []string  `json:"valid_values,omitempty"`
}

type Definition struct {
	Name        string      `json:"name"`
	PrettyName  string      `json:"pretty_name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Definition)
)

// Register adds or replaces a strategy definition.
func Register(def Definition) {
	mu.Lock()
	defer mu.Unlock()
	registry[def.Name] = def
}

func Get(name string) (Definition, bool) {
	mu.RLock()
	defer mu.RUnlock()
	def, ok := registry[name]
	return def, ok
}

// List returns every registered strategy sorted by name.
func List() []Definition {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Definition, 0, len(registry))
	for _, def := range registry {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve fills defaults into params and validates the result against the definition.
// Unknown parameters are passed through untouched.
func Resolve(name string, params map[string]any) (map[string]any, error) {
	def, ok := Get(name)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	out := make(map[string]any, len(def.Parameters)+len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, p := range def.Parameters {
		v, set := out[p.Name]
		if !set || v == nil {
			if p.Default == nil {
				if p.Required {
					return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "parameter %s is required for %s", p.Name, name)
				}
				continue
			}
			out[p.Name] = p.Default
			continue
		}
		if err := p.check(v); err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidRequest, fmt.Sprintf("invalid parameter %s for %s", p.Name, name), err)
		}
	}
	out["controller_name"] = def.Name
	return out, nil
}

func Names() []string {
	defs := List()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

func (p Parameter) check(v any) error {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if len(p.ValidValues) > 0 {
			for _, allowed := range p.ValidValues {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("%q is not one of %v", s, p.ValidValues)
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
	case TypeInt, TypeFloat:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
		if p.Type == TypeInt && f != float64(int64(f)) {
			return fmt.Errorf("expected integer, got %v", f)
		}
		if p.MinValue != nil && f < *p.MinValue {
			return fmt.Errorf("%v is below %v", f, *p.MinValue)
		}
		if p.MaxValue != nil && f > *p.MaxValue {
			return fmt.Errorf("%v is above %v", f, *p.MaxValue)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
