package projects

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublicID(t *testing.T) {
	re := regexp.MustCompile(`^appforge-\d{5}-\d{4}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := NewPublicID("appforge")
		require.NoError(t, err)
		assert.Regexp(t, re, id)
		seen[id] = true
	}

	// collisions are possible but 50 identical draws would mean a broken generator
	assert.Greater(t, len(seen), 1)
}
