// Package country resolves free-form country names to ISO-3166 codes.
package country

import (
	"strings"

	"github.com/biter777/countries"
)

type Codes struct {
	Name   string
	Alpha2 string
	Alpha3 string
}

// Resolve looks name up exactly first and then by case-insensitive substring
// of the English country names, returning the first match in code order.
func Resolve(name string) (Codes, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Codes{}, false
	}
	if c := countries.ByName(name); c != countries.Unknown && c.IsValid() {
		return codesOf(c), true
	}
	needle := strings.ToLower(name)
	for _, c := range countries.All() {
		if strings.Contains(strings.ToLower(c.String()), needle) {
			return codesOf(c), true
		}
	}
	return Codes{}, false
}

func codesOf(c countries.CountryCode) Codes {
	return Codes{Name: c.String(), Alpha2: c.Alpha2(), Alpha3: c.Alpha3()}
}
