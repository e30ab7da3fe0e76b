package phone

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		phone     string
		region    string
		wantE164  string
		wantError bool
	}{
		{
			name:     "Mexico legacy mobile prefix",
			phone:    "+52 1 55 1234 5678",
			wantE164: "+525512345678",
		},
		{
			name:     "Mexico current format",
			phone:    "+52 55 1234 5678",
			wantE164: "+525512345678",
		},
		{
			name:     "Mexico legacy prefix without plus",
			phone:    "5215512345678",
			wantE164: "+525512345678",
		},
		{
			name:     "Mexico national number uses default region",
			phone:    "55 1234 5678",
			wantE164: "+525512345678",
		},
		{
			name:     "US number with formatting",
			phone:    "+1 (202) 456-1111",
			region:   "US",
			wantE164: "+12024561111",
		},
		{
			name:     "US national number with US region",
			phone:    "2024561111",
			region:   "us",
			wantE164: "+12024561111",
		},
		{
			name:      "empty",
			phone:     "",
			wantError: true,
		},
		{
			name:      "letters only",
			phone:     "not a phone",
			wantError: true,
		},
		{
			name:      "too short",
			phone:     "+52 123",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(tt.region)
			got, err := n.Normalize(tt.phone)

			if tt.wantError {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidNumber))
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantE164, got.E164)
			assert.Equal(t, tt.phone, got.Original)
		})
	}
}

func TestNormalizer_MexicoDetails(t *testing.T) {
	got, err := NewNormalizer("").Normalize("+52 1 55 1234 5678")
	require.NoError(t, err)

	assert.Equal(t, int32(52), got.CountryCode)
	assert.Equal(t, "5512345678", got.NationalNumber)
	assert.Equal(t, "MX", got.Region)
}

func TestNormalizer_Equivalent(t *testing.T) {
	n := NewNormalizer("MX")

	assert.True(t, n.Equivalent("+52 1 55 1234 5678", "+525512345678"))
	assert.True(t, n.Equivalent("55-1234-5678", "+52 55 1234 5678"))
	assert.False(t, n.Equivalent("+525512345678", "+525512345679"))
	assert.False(t, n.Equivalent("garbage", "+525512345678"))
}

func TestNormalizer_FormatDisplay(t *testing.T) {
	n := NewNormalizer("MX")

	assert.Equal(t, "+52 55 1234 5678", n.FormatDisplay("+525512345678"))
	assert.Equal(t, "garbage", n.FormatDisplay("garbage"))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "+525512345678", clean(" +52 (55) 1234-5678 "))
	assert.Equal(t, "5512345678", clean("55.1234.5678"))
	assert.Equal(t, "52", clean("5+2"))
}
