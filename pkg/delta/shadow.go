package delta

import (
	"fmt"
	"strconv"

	"github.com/theus-run/theus/pkg/types"
)

// Cache is the per-transaction copy-on-first-write store: the first time a
// mutable subtree at path p is touched, its current value is deep-cloned and
// recorded here. Every subsequent access to p or any child of p reuses that
// same clone rather than re-cloning (spec.md §4.2). Not safe for concurrent
// use, matching the transaction it belongs to.
type Cache struct {
	// roots maps a path that was itself the first-touched ancestor to its
	// cloned value.
	roots map[string]any
	// rootOf maps every path ever resolved through Ensure to the root path
	// whose clone it reads through, so repeated access to the same child
	// path doesn't have to re-walk ancestors.
	rootOf map[string]string
}

// NewCache returns an empty shadow cache.
func NewCache() *Cache {
	return &Cache{roots: make(map[string]any), rootOf: make(map[string]string)}
}

// Ensure returns the shadow value backing path, cloning from load() on the
// first touch of path or any ancestor of path, and reusing that clone on
// every later call. load is invoked at most once per distinct root.
func (c *Cache) Ensure(path string, load func() (any, error)) (any, error) {
	if root, ok := c.rootOf[path]; ok {
		return c.navigate(root, path)
	}

	if ancestor := c.findShadowedAncestor(path); ancestor != "" {
		c.rootOf[path] = ancestor
		return c.navigate(ancestor, path)
	}

	val, err := load()
	if err != nil {
		return nil, err
	}
	cloned, err := DeepClone(val)
	if err != nil {
		return nil, err
	}
	c.roots[path] = cloned
	c.rootOf[path] = path
	return cloned, nil
}

// Root returns the clone stored for path if path is itself a shadow root
// (was the first-touched path), and whether it was found.
func (c *Cache) Root(path string) (any, bool) {
	v, ok := c.roots[path]
	return v, ok
}

// Touched reports every path that became a shadow root in this transaction,
// in no particular order.
func (c *Cache) Touched() []string {
	paths := make([]string, 0, len(c.roots))
	for p := range c.roots {
		paths = append(paths, p)
	}
	return paths
}

func (c *Cache) findShadowedAncestor(path string) string {
	for candidate := range c.roots {
		if types.HasAncestor(path, candidate) {
			return candidate
		}
	}
	return ""
}

// navigate walks from the clone stored at root down to path, which must be
// root itself or a descendant of it.
func (c *Cache) navigate(root, path string) (any, error) {
	cur := c.roots[root]
	if path == root {
		return cur, nil
	}
	rel := path[len(root):]
	if len(rel) == 0 {
		return cur, nil
	}
	if rel[0] == '.' {
		rel = rel[1:]
	}
	if rel == "" {
		return cur, nil
	}
	segs, err := types.ParsePath(rel)
	if err != nil {
		return nil, fmt.Errorf("shadow: %w", err)
	}
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("shadow: path %q does not resolve through a map at %q", path, root)
		}
		cur, ok = m[seg.Key]
		if !ok {
			return nil, nil
		}
		if seg.HasIndex {
			slice, ok := cur.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(slice) {
				return nil, fmt.Errorf("shadow: index %s out of range at %q", strconv.Itoa(seg.Index), path)
			}
			cur = slice[seg.Index]
		}
	}
	return cur, nil
}
