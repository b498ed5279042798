package store

import (
	"strings"

	"dario.cat/mergo"
	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/theus-run/theus/pkg/types"
)

// applyPatch folds patch into tree one top-level key at a time, returning
// the new persistent tree. touched, if non-nil, collects every key that was
// actually written — an entry whose patch value is an empty map is treated
// as "no change at this subtree" (spec.md §4.1) and neither writes nor marks
// the key touched. A top-level types.Tombstone removes the key outright
// (spec.md §4.4 DELETE).
func applyPatch(tree *iradix.Tree, patch map[string]any, touched map[string]struct{}) (*iradix.Tree, error) {
	if len(patch) == 0 {
		return tree, nil
	}
	txn := tree.Txn()
	for key, patchVal := range patch {
		if types.IsTombstone(patchVal) {
			txn.Delete([]byte(key))
			if touched != nil {
				touched[key] = struct{}{}
			}
			continue
		}
		if isEmptyMap(patchVal) {
			continue
		}
		baseVal, _ := txn.Get([]byte(key))
		merged, err := mergeValue(baseVal, patchVal)
		if err != nil {
			return tree, err
		}
		txn.Insert([]byte(key), merged)
		if touched != nil {
			touched[key] = struct{}{}
		}
	}
	return txn.Commit(), nil
}

// mergeValue merges patch onto base per spec.md §4.1: when both sides are
// maps, recurse key by key (via mergo, with patch values winning); otherwise
// the patch value replaces the base outright. Any types.Tombstone found
// inside patch removes the corresponding key from the merged result instead
// of being merged as an ordinary value.
func mergeValue(base, patch any) (any, error) {
	patchMap, patchIsMap := patch.(map[string]any)
	if !patchIsMap {
		return patch, nil
	}
	baseMap, _ := base.(map[string]any)

	var tombstones []string
	cleanPatch := stripTombstones(patchMap, "", &tombstones)

	dst := make(map[string]any, len(baseMap))
	for k, v := range baseMap {
		dst[k] = v
	}
	// mergo.WithOverride alone (without WithOverwriteWithEmptyValue) already
	// treats an empty map in patchMap as "leave dst's subtree untouched",
	// which is exactly the empty-submap optimization spec.md §4.1 describes.
	if len(cleanPatch) > 0 {
		if err := mergo.Merge(&dst, cleanPatch, mergo.WithOverride); err != nil {
			return nil, err
		}
	}
	for _, path := range tombstones {
		deleteNestedPath(dst, path)
	}
	return dst, nil
}

// stripTombstones walks m recursively, removing every types.Tombstone leaf
// and recording its dotted path in tombstones, so the caller can delete those
// paths from the merge result after mergo has applied everything else.
func stripTombstones(m map[string]any, prefix string, tombstones *[]string) map[string]any {
	cleaned := make(map[string]any, len(m))
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if types.IsTombstone(v) {
			*tombstones = append(*tombstones, path)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			cleaned[k] = stripTombstones(sub, path, tombstones)
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

// deleteNestedPath removes the dotted path from m, leaving ancestor maps
// otherwise intact. A missing intermediate container is a silent no-op,
// matching "deleting something already absent" being harmless.
func deleteNestedPath(m map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := m
	for i, p := range parts {
		if i == len(parts)-1 {
			delete(cur, p)
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

func isEmptyMap(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}
