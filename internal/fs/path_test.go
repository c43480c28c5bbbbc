package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinChild(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "simple name", input: "test.txt", valid: true},
		{name: "hidden file", input: ".profile", valid: true},
		{name: "dots inside name", input: "a..b", valid: true},
		{name: "empty", input: "", valid: false},
		{name: "current directory", input: ".", valid: false},
		{name: "parent directory", input: "..", valid: false},
		{name: "separator", input: "dir/test.txt", valid: false},
		{name: "escape attempt", input: "../../etc/passwd", valid: false},
		{name: "nul byte", input: "bad\x00name", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			child, err := joinChild("/target/dir", tt.input)
			if !tt.valid {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join("/target/dir", tt.input), child)
		})
	}
}

func TestParentOf(t *testing.T) {
	assert.Equal(t, "/target", parentOf("/target", "/target"))
	assert.Equal(t, "/target", parentOf("/target", "/target/a"))
	assert.Equal(t, "/target/a", parentOf("/target", "/target/a/b"))
}
