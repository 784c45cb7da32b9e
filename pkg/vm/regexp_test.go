package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRegExpFlags(t *testing.T) {
	tests := []struct {
		pattern, flags, input string
		want                  bool
	}{
		{"ab+c", "", "xabbcx", true},
		{"ab+c", "", "xABBCx", false},
		{"ab+c", "i", "xABBCx", true},
		{"^b$", "", "a\nb", false},
		{"^b$", "m", "a\nb", true},
		{"^B$", "gim", "a\nb", true},
	}
	for _, tt := range tests {
		d, err := CompileRegExp(tt.pattern, tt.flags)
		require.NoError(t, err, "/%s/%s", tt.pattern, tt.flags)
		m, err := d.Exec(tt.input, 0)
		require.NoError(t, err)
		assert.Equal(t, tt.want, m != nil, "/%s/%s on %q", tt.pattern, tt.flags, tt.input)
	}

	d, err := CompileRegExp("x", "gim")
	require.NoError(t, err)
	assert.True(t, d.Global)
	assert.True(t, d.IgnoreCase)
	assert.True(t, d.Multiline)

	for _, flags := range []string{"gg", "y", "q"} {
		_, err := CompileRegExp("x", flags)
		assert.Error(t, err, flags)
	}
}
