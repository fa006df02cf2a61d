package secure

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRevealRoundTrip(t *testing.T) {
	s := NewSecret("AIzaSyTestSecretValue9876")
	got, err := s.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyTestSecretValue9876", got)

	// Reveal can be called repeatedly.
	again, err := s.Reveal()
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestSecretNeverPrintsPlaintext(t *testing.T) {
	s := NewSecret("AIzaSyTestSecretValue9876")

	assert.Equal(t, "AIza...9876", s.String())
	assert.NotContains(t, fmt.Sprintf("%v %s %#v", s, s, s), "TestSecretValue")

	raw, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"AIza...9876"}`, string(raw))
}

func TestSecretEqualityByFingerprint(t *testing.T) {
	a := NewSecret("same-secret-value-0001")
	b := NewSecret("same-secret-value-0001")
	c := NewSecret("other-secret-value-0002")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Len(t, a.Fingerprint(), 64)
}

func TestEmptySecret(t *testing.T) {
	var s Secret
	assert.True(t, s.IsEmpty())
	assert.False(t, s.Equal(Secret{}))
	_, err := s.Reveal()
	assert.ErrorIs(t, err, ErrEmptySecret)
	assert.True(t, NewSecret("").IsEmpty())
}

func TestMaskShortValues(t *testing.T) {
	assert.Equal(t, "****", Mask("short"))
	assert.Equal(t, "abcd...mnop", Mask("abcdefghijklmnop"))
}
