package validation

import (
	"regexp"
	"strconv"

	"github.com/Ramsey-B/fern/pkg/transform"
)

var rutPattern = regexp.MustCompile(`^(\d{1,9})-([\dK])$`)

// ValidRUT reports whether s is a Chilean RUT with a correct modulo-11 check digit.
// Dots, spaces and a lower-case k are accepted.
func ValidRUT(s string) bool {
	m := rutPattern.FindStringSubmatch(transform.NormalizeTaxID(s))
	if m == nil {
		return false
	}
	return rutCheckDigit(m[1]) == m[2]
}

func rutCheckDigit(body string) string {
	sum, multiplier := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * multiplier
		multiplier++
		if multiplier > 7 {
			multiplier = 2
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return "0"
	case 10:
		return "K"
	default:
		return strconv.Itoa(r)
	}
}
