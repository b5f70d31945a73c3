// Package ordernum generates and validates human-readable order numbers:
// twelve digits formatted NNNN-NNNN-NNNN, the last digit being a Luhn
// check digit over the first eleven.
package ordernum

import (
	"math/rand"
	"strings"
)

// New returns a fresh dash-formatted order number.
func New() string {
	digits := make([]byte, 12)
	for i := 0; i < 11; i++ {
		digits[i] = byte('0' + rand.Intn(10))
	}
	digits[11] = checkDigit(digits[:11])
	var b strings.Builder
	b.Grow(14)
	b.Write(digits[0:4])
	b.WriteByte('-')
	b.Write(digits[4:8])
	b.WriteByte('-')
	b.Write(digits[8:12])
	return b.String()
}

// Validate reports whether number is a well-formed NNNN-NNNN-NNNN order
// number with a correct check digit.
func Validate(number string) bool {
	if len(number) != 14 || number[4] != '-' || number[9] != '-' {
		return false
	}
	plain := number[0:4] + number[5:9] + number[10:14]

	sum := 0
	alternate := false
	for i := len(plain) - 1; i >= 0; i-- {
		ch := plain[i]
		if ch < '0' || ch > '9' {
			return false
		}
		d := int(ch - '0')
		if alternate {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alternate = !alternate
	}
	return sum%10 == 0
}

func checkDigit(payload []byte) byte {
	sum := 0
	alternate := true
	for i := len(payload) - 1; i >= 0; i-- {
		d := int(payload[i] - '0')
		if alternate {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alternate = !alternate
	}
	return byte('0' + (10-sum%10)%10)
}
