package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("*")
	req.NoError(err)
	req.Equal('*', r)

	// Multi-byte single characters are fine
	r, err = CharacterRune("█")
	req.NoError(err)
	req.Equal('█', r)

	_, err = CharacterRune("")
	req.Error(err)
	_, err = CharacterRune("**")
	req.Error(err)
}

func TestValidateRetention(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateRetention(1))
	req.NoError(ValidateRetention(150))
	req.NoError(ValidateRetention(1000))

	req.Error(ValidateRetention(0))
	req.Error(ValidateRetention(-5))
	req.Error(ValidateRetention(1001))
}
