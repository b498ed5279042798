package delta

import (
	"fmt"

	"github.com/theus-run/theus/pkg/theuserr"
	"github.com/theus-run/theus/pkg/types"
)

// DeepClone produces a detached copy of v suitable for a transaction's
// shadow cache. map[string]any and []any are walked recursively and cycle-
// safe via seen; a value implementing types.Cloner delegates to it (this is
// how *types.HeavyHandle turns a "deep copy" into a ref-counted handle copy,
// and how a host type can opt out of reflection entirely); anything else
// that isn't a recognized scalar is rejected with ErrTransactionIsolation
// rather than silently shared with the original.
func DeepClone(v any) (any, error) {
	return cloneValue(v, make(map[any]any))
}

func cloneValue(v any, seen map[any]any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case types.Cloner:
		return val.Clone()
	case map[string]any:
		if c, ok := seen[pointerKey(val)]; ok {
			return c, nil
		}
		out := make(map[string]any, len(val))
		seen[pointerKey(val)] = out
		for k, sub := range val {
			cloned, err := cloneValue(sub, seen)
			if err != nil {
				return nil, err
			}
			out[k] = cloned
		}
		return out, nil
	case []any:
		if c, ok := seen[pointerKey(val)]; ok {
			return c, nil
		}
		out := make([]any, len(val))
		seen[pointerKey(val)] = out
		for i, sub := range val {
			cloned, err := cloneValue(sub, seen)
			if err != nil {
				return nil, err
			}
			out[i] = cloned
		}
		return out, nil
	case *types.Set:
		return val.Clone()
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, nil
	default:
		return nil, fmt.Errorf("value of type %T refuses to be cloned: %w", v, theuserr.ErrTransactionIsolation)
	}
}

// pointerKey derives a stable identity for cycle detection out of a map or
// slice header's backing address. Neither type is directly comparable as a
// map key, but %p is: two values sharing one allocation format identically.
func pointerKey(v any) any {
	return fmt.Sprintf("%p", v)
}
