package logic

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned when a message payload is not a finite
// decimal number.
var ErrMalformedPayload = errors.New("malformed payload")

// ParseValue parses a sensor payload and rounds it to one fractional digit.
// It returns the rounded value together with its display form, which is
// always formatted with a '.' decimal separator.
func ParseValue(payload []byte) (float64, string, error) {
	s := strings.TrimSpace(string(payload))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedPayload, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "", fmt.Errorf("%w: %q is not finite", ErrMalformedPayload, s)
	}

	formatted := FormatValue(v)
	rounded, _ := strconv.ParseFloat(formatted, 64)
	return rounded, formatted, nil
}

// FormatValue renders v with exactly one fractional digit.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
