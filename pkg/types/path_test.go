package types

import "testing"

import "github.com/stretchr/testify/assert"

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []Segment
		wantErr bool
	}{
		{
			name: "simple dotted path",
			path: "domain.user.balance",
			want: []Segment{{Key: "domain", Index: -1}, {Key: "user", Index: -1}, {Key: "balance", Index: -1}},
		},
		{
			name: "bracketed index",
			path: "domain.items[3]",
			want: []Segment{{Key: "domain", Index: -1}, {Key: "items", Index: 3, HasIndex: true}},
		},
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
		},
		{
			name:    "trailing dot",
			path:    "domain.",
			wantErr: true,
		},
		{
			name:    "unterminated bracket",
			path:    "items[3",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopLevelKey(t *testing.T) {
	assert.Equal(t, "domain", TopLevelKey("domain.user.balance"))
	assert.Equal(t, "items", TopLevelKey("items[3].name"))
	assert.Equal(t, "solo", TopLevelKey("solo"))
}

func TestLeaf(t *testing.T) {
	assert.Equal(t, "balance", Leaf("domain.user.balance"))
	assert.Equal(t, "items", Leaf("domain.items[3]"))
	assert.Equal(t, "log_events", Leaf("log_events"))
}

func TestHasAncestor(t *testing.T) {
	assert.True(t, HasAncestor("domain.user.name", "domain.user"))
	assert.True(t, HasAncestor("domain.user", "domain.user"))
	assert.False(t, HasAncestor("domain.username", "domain.user"))
	assert.True(t, HasAncestor("domain.items[3]", "domain.items"))
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*", "anything.at.all", true},
		{"domain.user.*", "domain.user.name", true},
		{"domain.user.*", "domain.user", true},
		{"domain.user.*", "domain.username", false},
		{"domain.user", "domain.user.name", true},
		{"domain.user.name", "domain.user", true},
		{"log_*", "log_events", true},
		{"log_*", "log_events.count", true},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, MatchPattern(tt.pattern, tt.path), "pattern=%s path=%s", tt.pattern, tt.path)
	}
}
