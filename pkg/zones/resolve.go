package zones

import (
	"strings"

	"github.com/theus-run/theus/pkg/types"
)

// Prefix tuples a leaf segment is matched against, in priority order. Ported
// directly from the original resolve_zone, extended with the const_/internal_
// rules the original lacked.
var (
	prefixLog      = []string{"log_", "audit_"}
	prefixConstant = []string{"const_"}
	prefixPrivate  = []string{"internal_"}
	prefixSignal   = []string{"sig_", "cmd_"}
	prefixMeta     = []string{"meta_"}
	prefixHeavy    = []string{"heavy_"}
)

// Resolve determines the zone of path from its leaf segment's prefix.
func Resolve(path string) types.Zone {
	leaf := types.Leaf(path)
	switch {
	case hasAny(leaf, prefixLog):
		return types.LOG
	case hasAny(leaf, prefixConstant):
		return types.CONSTANT
	case hasAny(leaf, prefixPrivate):
		return types.PRIVATE
	case hasAny(leaf, prefixSignal):
		return types.SIGNAL
	case hasAny(leaf, prefixMeta):
		return types.META
	case hasAny(leaf, prefixHeavy):
		return types.HEAVY
	default:
		return types.DATA
	}
}

func hasAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// DefaultMask is the capability ceiling a zone grants before any namespace
// policy or physics-override annotation is applied (spec.md §3/§4.4).
func DefaultMask(z types.Zone) types.Mask {
	switch z {
	case types.LOG:
		return types.Read | types.Append
	case types.CONSTANT:
		return types.Read
	case types.PRIVATE:
		return types.Read | types.Update | types.Append | types.Delete
	case types.SIGNAL:
		return types.Read | types.Update | types.Append | types.Delete
	case types.META:
		return types.Read
	case types.HEAVY:
		return types.Read | types.Update
	default: // DATA
		return types.Mutable
	}
}
