package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
	// "行情" is two 3-byte runes; cutting at 4 keeps only the first.
	assert.Equal(t, "行...", Truncate("行情", 4))
}
