// Package phone normalises guardian contact numbers.
package phone

import (
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// ErrInvalid is returned for numbers that cannot be dialled.
var ErrInvalid = errors.New("phone number is not valid")

// Normalize parses raw in the context of defaultRegion and returns it in E.164 form.
func Normalize(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}
	num, err := libphonenumber.Parse(raw, strings.ToUpper(defaultRegion))
	if err != nil {
		return "", ErrInvalid
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
