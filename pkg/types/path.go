package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one dotted or bracketed component of a Path, e.g. "items[3]"
// parses to Segment{Key: "items", Index: 3, HasIndex: true}.
type Segment struct {
	Key      string
	Index    int
	HasIndex bool
}

// ParsePath splits a dotted/bracketed path string into its segments.
// "domain.items[3].name" -> [{domain -1 false} {items 3 true} {name -1 false}]
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, fmt.Errorf("path: empty path")
	}
	parts := strings.Split(path, ".")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("path: empty segment in %q", path)
		}
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("path: %q: %w", path, err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func parseSegment(part string) (Segment, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return Segment{Key: part, Index: -1}, nil
	}
	if !strings.HasSuffix(part, "]") {
		return Segment{}, fmt.Errorf("unterminated bracket in %q", part)
	}
	key := part[:open]
	idxStr := part[open+1 : len(part)-1]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return Segment{}, fmt.Errorf("non-numeric index %q", idxStr)
	}
	if key == "" {
		return Segment{}, fmt.Errorf("missing key before bracket in %q", part)
	}
	return Segment{Key: key, Index: idx, HasIndex: true}, nil
}

// TopLevelKey returns the first dotted segment's key, the unit Smart CAS
// conflict detection and deep-merge operate on.
func TopLevelKey(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[:i]
	}
	if i := strings.IndexByte(path, '['); i >= 0 {
		path = path[:i]
	}
	return path
}

// Leaf returns the key of the final segment, ignoring any trailing index —
// this is what zone classification is keyed on (spec.md §3).
func Leaf(path string) string {
	segs, err := ParsePath(path)
	if err != nil || len(segs) == 0 {
		return path
	}
	return segs[len(segs)-1].Key
}

// Parent returns the path with its final segment removed, or "" for a
// top-level path.
func Parent(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// HasAncestor reports whether ancestor is path itself or a dotted/bracketed
// prefix of it — the rule that lets a contract declare "domain.user" and
// cover writes to "domain.user.name".
func HasAncestor(path, ancestor string) bool {
	if path == ancestor {
		return true
	}
	if strings.HasPrefix(path, ancestor+".") {
		return true
	}
	if strings.HasPrefix(path, ancestor+"[") {
		return true
	}
	return false
}

// MatchPattern reports whether a contract pattern covers path. Patterns
// support a trailing "*" wildcard, a bare "*" matching everything, and plain
// ancestor/sub-path prefixing (spec.md §4.4 rule 3).
func MatchPattern(pattern, path string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		base := strings.TrimSuffix(pattern, ".*")
		return HasAncestor(path, base)
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(path, prefix)
	}
	return HasAncestor(path, pattern) || HasAncestor(pattern, path)
}

// MatchAny reports whether any pattern in patterns covers path.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if MatchPattern(p, path) {
			return true
		}
	}
	return false
}
