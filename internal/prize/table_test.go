package prize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opt(label string, value int64, p float64) Option {
	return Option{Label: label, Value: decimal.NewFromInt(value), Probability: p}
}

func TestValidateTable(t *testing.T) {
	cases := []struct {
		name    string
		options []Option
		wantErr error
	}{
		{"valid", []Option{opt("Lose", 0, 0.99), opt("$5", 5, 0.01)}, nil},
		{"within tolerance", []Option{opt("Lose", 0, 0.6), opt("$1", 1, 0.3995)}, nil},
		{"empty", nil, ErrEmptyTable},
		{"sum too low", []Option{opt("Lose", 0, 0.5), opt("$1", 1, 0.4)}, ErrProbabilitySum},
		{"sum too high", []Option{opt("Lose", 0, 0.9), opt("$1", 1, 0.2)}, ErrProbabilitySum},
		{"negative probability", []Option{opt("Lose", 0, 1.1), opt("$1", 1, -0.1)}, ErrInvalidProbability},
		{"negative value", []Option{opt("Lose", 0, 0.5), opt("debt", -1, 0.5)}, ErrNegativeValue},
		{"no losing option", []Option{opt("$1", 1, 0.5), opt("$2", 2, 0.5)}, ErrNoLosingOption},
		{"empty label", []Option{opt("", 0, 1)}, ErrEmptyLabel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTable(tc.options)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
			require.ErrorIs(t, err, ErrInvalidPrizeTable)
		})
	}
}

func TestNewTableCopiesOptions(t *testing.T) {
	options := []Option{opt("Lose", 0, 0.5), opt("$10", 10, 0.5)}
	table, err := NewTable("primary", options)
	require.NoError(t, err)

	options[1].Label = "mutated"
	assert.Equal(t, "$10", table.Options()[1].Label)
	assert.Equal(t, "primary", table.Name())
	assert.Equal(t, 2, table.Len())
	assert.True(t, table.MaxValue().Equal(decimal.NewFromInt(10)))
}

func TestNewTableRejectsInvalid(t *testing.T) {
	_, err := NewTable("broken", []Option{opt("Lose", 0, 0.2)})
	require.ErrorIs(t, err, ErrInvalidPrizeTable)
	assert.Contains(t, err.Error(), "broken")

	assert.Panics(t, func() { MustTable("broken", nil) })
}
