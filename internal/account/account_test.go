package account

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := []string{"ab", "Player_1", "UPPER_lower_09", strings.Repeat("x", 32)}
	for _, id := range valid {
		assert.NoError(t, Validate(id), id)
	}

	invalid := []string{"", "a", strings.Repeat("x", 33), "has space", "dash-name", "emoji🙂", "semi;colon"}
	for _, id := range invalid {
		err := Validate(id)
		require.Error(t, err, id)
		assert.ErrorIs(t, err, ErrInvalidAccountID)
	}
}

func TestValidatorStructTag(t *testing.T) {
	type req struct {
		AccountID string `validate:"required,min=2,max=32,accountid"`
	}
	assert.NoError(t, Validator().Struct(req{AccountID: "alice_01"}))
	assert.Error(t, Validator().Struct(req{AccountID: "alice!"}))
}

func TestHashClientIP(t *testing.T) {
	assert.Empty(t, HashClientIP(""))
	h := HashClientIP("203.0.113.7")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashClientIP("203.0.113.7"))
	assert.NotEqual(t, h, HashClientIP("203.0.113.8"))
}
