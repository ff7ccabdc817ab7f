package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashKnownVector(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("<html><body>ok</body></html>"))
	require.NoError(t, err)
	require.Len(t, got, 64)
	require.Regexp(t, "^[0-9a-f]{64}$", got)
}

func TestHashDistinguishesContent(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("page one"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("page two"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	again, err := h.Hash([]byte("page one"))
	require.NoError(t, err)
	require.Equal(t, a, again)
}

func TestHashEmptyInput(t *testing.T) {
	t.Parallel()

	got, err := New().Hash(nil)
	require.NoError(t, err)
	// SHA-256 of the empty string.
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}
