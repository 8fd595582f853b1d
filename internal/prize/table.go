package prize

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ProbabilityTolerance is the allowed distance of a table's probability sum from 1.0
// (0.1 percentage points).
const ProbabilityTolerance = 1e-3

var (
	ErrInvalidPrizeTable  = errors.New("invalid prize table")
	ErrEmptyTable         = fmt.Errorf("%w: no options", ErrInvalidPrizeTable)
	ErrProbabilitySum     = fmt.Errorf("%w: probabilities must sum to 1", ErrInvalidPrizeTable)
	ErrInvalidProbability = fmt.Errorf("%w: probability out of [0,1]", ErrInvalidPrizeTable)
	ErrNegativeValue      = fmt.Errorf("%w: negative prize value", ErrInvalidPrizeTable)
	ErrNoLosingOption     = fmt.Errorf("%w: no zero-value option", ErrInvalidPrizeTable)
	ErrEmptyLabel         = fmt.Errorf("%w: empty label", ErrInvalidPrizeTable)
)

// Option is one outcome of a prize table.
type Option struct {
	Label       string          `json:"label" mapstructure:"label"`
	Value       decimal.Decimal `json:"value" mapstructure:"value"`
	Probability float64         `json:"probability" mapstructure:"probability"`
}

// IsWin reports whether landing on the option credits the wallet.
func (o Option) IsWin() bool {
	return o.Value.IsPositive()
}

// Table is a validated, ordered list of options. The zero value is empty and
// never passes validation; build tables with NewTable.
type Table struct {
	name    string
	options []Option
}

// NewTable validates options and returns an immutable table.
func NewTable(name string, options []Option) (Table, error) {
	if err := ValidateTable(options); err != nil {
		return Table{}, fmt.Errorf("table %q: %w", name, err)
	}
	cp := make([]Option, len(options))
	copy(cp, options)
	return Table{name: name, options: cp}, nil
}

// MustTable is NewTable for static tables; it panics on an invalid table.
func MustTable(name string, options []Option) Table {
	t, err := NewTable(name, options)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Table) Name() string { return t.name }

func (t Table) Len() int { return len(t.options) }

// Options returns a copy of the table's options in draw order.
func (t Table) Options() []Option {
	cp := make([]Option, len(t.options))
	copy(cp, t.options)
	return cp
}

// Contains reports whether o is one of the table's declared options.
func (t Table) Contains(o Option) bool {
	return lo.ContainsBy(t.options, func(x Option) bool {
		return x.Label == o.Label && x.Value.Equal(o.Value) && x.Probability == o.Probability
	})
}

// MaxValue is the largest prize in the table.
func (t Table) MaxValue() decimal.Decimal {
	return lo.Reduce(t.options, func(acc decimal.Decimal, o Option, _ int) decimal.Decimal {
		return decimal.Max(acc, o.Value)
	}, decimal.Zero)
}

// ValidateTable checks a table is a complete probability distribution that
// includes a losing outcome.
func ValidateTable(options []Option) error {
	if len(options) == 0 {
		return ErrEmptyTable
	}
	hasLose := false
	for _, o := range options {
		if o.Label == "" {
			return ErrEmptyLabel
		}
		if math.IsNaN(o.Probability) || o.Probability < 0 || o.Probability > 1 {
			return fmt.Errorf("%w: %q=%v", ErrInvalidProbability, o.Label, o.Probability)
		}
		if o.Value.IsNegative() {
			return fmt.Errorf("%w: %q", ErrNegativeValue, o.Label)
		}
		if o.Value.IsZero() {
			hasLose = true
		}
	}
	sum := lo.SumBy(options, func(o Option) float64 { return o.Probability })
	if math.Abs(sum-1) > ProbabilityTolerance {
		return fmt.Errorf("%w: got %.4f", ErrProbabilitySum, sum)
	}
	if !hasLose {
		return ErrNoLosingOption
	}
	return nil
}
