package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))

	_, err := s.Get("mail.smtp")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set("mail.smtp", "secret"))

	got, err := s.Get("mail.smtp")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, s.Delete("mail.smtp"))
	_, err = s.Get("mail.smtp")
	require.ErrorIs(t, err, ErrNotFound)
}
