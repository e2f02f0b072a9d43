package suite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssertion_Holds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		assertion Assertion
		value     float64
		want      bool
	}{
		{"equals exact", Equals(10), 10, true},
		{"equals within epsilon", Equals(10), 10 + 1e-11, true},
		{"equals outside epsilon", Equals(10), 10.1, false},
		{"not equals", NotEquals(10), 10.1, true},
		{"not equals same", NotEquals(10), 10, false},
		{"greater than", GreaterThan(10), 10.1, true},
		{"greater than boundary", GreaterThan(10), 10, false},
		{"gte boundary", GreaterThanOrEqual(10), 10, true},
		{"less than", LessThan(10), 9.9, true},
		{"lte boundary", LessThanOrEqual(10), 10, true},
		{"between inclusive low", Between(10, 20), 10, true},
		{"between inclusive high", Between(10, 20), 20, true},
		{"between outside", Between(10, 20), 20.1, false},
		{"not between below", NotBetween(10, 20), 9.9, true},
		{"not between inside", NotBetween(10, 20), 15, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, tc.assertion.Holds(tc.value))
		})
	}
}

func TestAssertion_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "equals 10", Equals(10).String())
	assert.Equal(t, "greater than 5", GreaterThan(5).String())
	assert.Equal(t, "between 1 and 10", Between(1, 10).String())
}
