// Package phone normalizes lead phone numbers to E.164.
//
// Mexican mobile numbers were historically dialed with an extra "1" after
// the country code (+52 1 55 1234 5678). Both forms normalize to the same
// E.164 value so a lead is never duplicated across the two spellings.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	// DefaultRegion is used to parse numbers without a country code
	DefaultRegion = "MX"

	mexicoCountryCode = 52
)

// ErrInvalidNumber is returned when a number cannot be normalized
var ErrInvalidNumber = errors.New("invalid phone number")

// Normalized is the result of normalizing a phone number
type Normalized struct {
	Original       string `json:"original"`
	E164           string `json:"e164"`
	CountryCode    int32  `json:"country_code"`
	NationalNumber string `json:"national_number"`
	Region         string `json:"region"`
	IsMobile       bool   `json:"is_mobile"`
}

// Normalizer converts raw phone input to E.164
type Normalizer struct {
	defaultRegion string
}

// NewNormalizer creates a normalizer. An empty region falls back to DefaultRegion.
func NewNormalizer(defaultRegion string) *Normalizer {
	if defaultRegion == "" {
		defaultRegion = DefaultRegion
	}
	return &Normalizer{defaultRegion: strings.ToUpper(defaultRegion)}
}

// Normalize parses and validates a phone number
func (n *Normalizer) Normalize(raw string) (*Normalized, error) {
	cleaned := clean(raw)
	if cleaned == "" || cleaned == "+" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidNumber)
	}
	cleaned = stripMexicoMobilePrefix(cleaned)

	parsed, err := phonenumbers.Parse(cleaned, n.defaultRegion)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidNumber, raw, err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}

	countryCode := parsed.GetCountryCode()
	national := fmt.Sprintf("%d", parsed.GetNationalNumber())
	if countryCode == mexicoCountryCode && len(national) == 11 && strings.HasPrefix(national, "1") {
		national = national[1:]
	}

	numberType := phonenumbers.GetNumberType(parsed)
	region := phonenumbers.GetRegionCodeForNumber(parsed)
	if region == "" {
		region = n.defaultRegion
	}

	return &Normalized{
		Original:       raw,
		E164:           fmt.Sprintf("+%d%s", countryCode, national),
		CountryCode:    countryCode,
		NationalNumber: national,
		Region:         region,
		IsMobile:       numberType == phonenumbers.MOBILE || numberType == phonenumbers.FIXED_LINE_OR_MOBILE,
	}, nil
}

// E164 normalizes a phone number and returns only its E.164 form
func (n *Normalizer) E164(raw string) (string, error) {
	res, err := n.Normalize(raw)
	if err != nil {
		return "", err
	}
	return res.E164, nil
}

// Equivalent reports whether two inputs normalize to the same number
func (n *Normalizer) Equivalent(a, b string) bool {
	na, err := n.E164(a)
	if err != nil {
		return false
	}
	nb, err := n.E164(b)
	if err != nil {
		return false
	}
	return na == nb
}

// FormatDisplay renders a number in international format, or returns the
// input unchanged when it cannot be parsed.
func (n *Normalizer) FormatDisplay(raw string) string {
	parsed, err := phonenumbers.Parse(stripMexicoMobilePrefix(clean(raw)), n.defaultRegion)
	if err != nil {
		return raw
	}
	return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL)
}

// clean drops formatting characters, keeping a leading plus sign
func clean(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripMexicoMobilePrefix rewrites +52 1 XXXXXXXXXX to +52 XXXXXXXXXX
func stripMexicoMobilePrefix(s string) string {
	switch {
	case strings.HasPrefix(s, "+521") && len(s) == 14:
		return "+52" + s[4:]
	case strings.HasPrefix(s, "521") && len(s) == 13:
		return "52" + s[3:]
	}
	return s
}
