package country

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		alpha3 string
		ok     bool
	}{
		{name: "exact name", input: "India", alpha3: "IND", ok: true},
		{name: "case insensitive", input: "japan", alpha3: "JPN", ok: true},
		{name: "empty", input: "  ", ok: false},
		{name: "nonsense", input: "Atlantis Prime", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.alpha3, got.Alpha3)
				assert.Len(t, got.Alpha2, 2)
			}
		})
	}
}

func TestResolve_SubstringFallback(t *testing.T) {
	got, ok := Resolve("Zealand")
	assert.True(t, ok)
	assert.Equal(t, "NZL", got.Alpha3)
}
