package ordernum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProducesValidNumbers(t *testing.T) {
	for i := 0; i < 100; i++ {
		n := New()
		assert.Len(t, n, 14)
		assert.True(t, Validate(n), "generated number %s failed validation", n)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		number string
		want   bool
	}{
		{"7992-7398-7138", true},  // 79927398713 + check digit 8
		{"7992-7398-7130", false}, // wrong check digit
		{"79927398713", false},    // missing dashes
		{"7992-73a8-7138", false}, // non-digit
		{"7992_7398_7138", false}, // wrong separators
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Validate(c.number), "number %q", c.number)
	}
}
