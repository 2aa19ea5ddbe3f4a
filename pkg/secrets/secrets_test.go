package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hie-gateway/pkg/domain-errors"
)

func TestGenerate(t *testing.T) {
	a, err := Generate(DefaultSize)
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, DefaultSize)

	b, err := Generate(DefaultSize)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGenerateRejectsShortSecrets(t *testing.T) {
	_, err := Generate(8)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
