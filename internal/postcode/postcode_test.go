package postcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_ValidPostcodes(t *testing.T) {
	tests := []struct {
		raw     string
		outcode string
		area    string
		sector  string
	}{
		{"SW1A 1AA", "SW1A", "SW", "SW1A 1AA"},
		{"EC1A 1BB", "EC1A", "EC", "EC1A 1BB"},
		{"B1 1AA", "B1", "B", "B1 1AA"},
		{"M60 7RA", "M60", "M", "M60 7RA"},
		{"W1A 0AX", "W1A", "W", "W1A 0AX"},
		{"CR2 6XH", "CR2", "CR", "CR2 6XH"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			parts := Parse(tt.raw)
			require.Equal(t, tt.outcode, parts.Outcode)
			require.Equal(t, tt.area, parts.Area)
			require.Equal(t, tt.sector, parts.Sector)
		})
	}
}

func TestParse_CaseInsensitive(t *testing.T) {
	parts := Parse("sw1a 1aa")
	require.Equal(t, "sw1a", parts.Outcode)
	require.Equal(t, "sw", parts.Area)
	require.Equal(t, "sw1a 1aa", parts.Sector)
}

func TestParse_InvalidInputDegradesToEmpty(t *testing.T) {
	for _, raw := range []string{
		"",
		"not a postcode",
		"SW1A1AA", // missing space
		"12345",
		"SW1A 1AAA",
		"1A 1AA",
	} {
		t.Run(raw, func(t *testing.T) {
			require.Equal(t, Parts{}, Parse(raw))
		})
	}
}

func TestParse_SpecialGIRForm(t *testing.T) {
	parts := Parse("GIR 0AA")
	require.Equal(t, "GIR", parts.Area)
	require.NotEmpty(t, parts.Outcode)
	require.NotEmpty(t, parts.Sector)
}
