package zones

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/theus-run/theus/pkg/types"
)

type innerSchema struct {
	Balance int `theus:"mutable"`
}

type testSchema struct {
	LogEvents string      `theus:"append_only"`
	Config    string      `theus:"immutable"`
	User      innerSchema
	Untagged  string
}

func TestScanSchemaCollectsNestedTags(t *testing.T) {
	out := ScanSchema(&testSchema{})
	assert.Equal(t, types.AppendOnly, out["LogEvents"])
	assert.Equal(t, types.Immutable, out["Config"])
	assert.Equal(t, types.Mutable, out["User.Balance"])
	_, ok := out["Untagged"]
	assert.False(t, ok)
}

func TestRegistryCeilingAppliesOverrideThenConstantFloor(t *testing.T) {
	r := NewRegistry()
	r.Override("domain.const_limit", types.Mutable)

	zone, mask := r.Ceiling("domain.const_limit")
	assert.Equal(t, types.CONSTANT, zone)
	assert.Equal(t, types.Read, mask, "override can never loosen the CONSTANT ceiling")
}

func TestRegistryNamespacePolicyNarrowsMask(t *testing.T) {
	r := NewRegistry()
	r.RegisterNamespace("domain", NamespacePolicy{AllowRead: true})

	zone, mask := r.Ceiling("domain.user.balance")
	assert.Equal(t, types.DATA, zone)
	assert.Equal(t, types.Read, mask)
	assert.False(t, mask.Allows(types.Update))
}

func TestRegistryOverrideWinsOverNamespacePolicy(t *testing.T) {
	r := NewRegistry()
	r.RegisterNamespace("domain", NamespacePolicy{AllowRead: true})
	r.Override("domain.user.balance", types.Mutable)

	_, mask := r.Ceiling("domain.user.balance")
	assert.Equal(t, types.Mutable, mask)
}
