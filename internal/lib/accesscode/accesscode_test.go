package accesscode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate_Format(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)

		for _, c := range code {
			require.GreaterOrEqual(t, c, '0')
			require.LessOrEqual(t, c, '9')
		}
	}
}

func TestGenerate_NotConstant(t *testing.T) {
	seen := map[string]bool{}

	for i := 0; i < 50; i++ {
		code, err := Generate()
		require.NoError(t, err)
		seen[code] = true
	}

	// 50 identical 6-digit codes would mean a broken random source
	require.Greater(t, len(seen), 1)
}
