package price

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	parser := NewParser(DefaultMinCents, DefaultMaxCents)

	tests := []struct {
		name     string
		text     string
		expected int64
		found    bool
	}{
		{
			name:     "whole euros with comma dash",
			text:     "€650,-",
			expected: 65000,
			found:    true,
		},
		{
			name:     "thousands separator with cents",
			text:     "€1.234,56",
			expected: 123456,
			found:    true,
		},
		{
			name:     "euros with explicit zero cents",
			text:     "€650,00",
			expected: 65000,
			found:    true,
		},
		{
			name:     "bare amount without fraction",
			text:     "€99",
			expected: 9900,
			found:    true,
		},
		{
			name:     "thousands with comma dash",
			text:     "€1.234,-",
			expected: 123400,
			found:    true,
		},
		{
			name:     "space between marker and amount",
			text:     "€ 586,-",
			expected: 58600,
			found:    true,
		},
		{
			name:     "embedded in surrounding text",
			text:     "Nu voor €1.299,00 inclusief verzending",
			expected: 129900,
			found:    true,
		},
		{
			name:     "comma as thousands separator",
			text:     "€1,234",
			expected: 123400,
			found:    true,
		},
		{
			name:  "no currency marker",
			text:  "650,-",
			found: false,
		},
		{
			name:  "below plausibility band",
			text:  "€5",
			found: false,
		},
		{
			name:  "above plausibility band",
			text:  "€99.999,00",
			found: false,
		},
		{
			name:  "year without marker",
			text:  "sinds 2019 verkrijgbaar",
			found: false,
		},
		{
			name:  "empty input",
			text:  "",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cents, ok := parser.ParsePrice(tt.text)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.expected, cents)
			}
		})
	}
}

func TestParsePriceCustomBounds(t *testing.T) {
	parser := NewParser(100, 10000)

	cents, ok := parser.ParsePrice("€5")
	require.True(t, ok)
	assert.Equal(t, int64(500), cents)

	_, ok = parser.ParsePrice("€650,-")
	assert.False(t, ok)
}

func TestExtractAllPrices(t *testing.T) {
	parser := NewParser(DefaultMinCents, DefaultMaxCents)

	tests := []struct {
		name     string
		text     string
		expected []int64
	}{
		{
			name:     "two prices ascending",
			text:     "€650,- €1.234,-",
			expected: []int64{65000, 123400},
		},
		{
			name:     "duplicates collapse",
			text:     "€650,- en nogmaals €650,00",
			expected: []int64{65000},
		},
		{
			name:     "mixed formats sorted",
			text:     "Adviesprijs €1.099,00, Tweede Kans €949,-",
			expected: []int64{94900, 109900},
		},
		{
			name:     "full format yields one price",
			text:     "Nu voor €1.234,56 inclusief verzending",
			expected: []int64{123456},
		},
		{
			name:     "no fraction thousands yields one price",
			text:     "Van €1.234,- voor minder",
			expected: []int64{123400},
		},
		{
			name:     "noise ignored",
			text:     "Artikel 82934 uit 2021, garantie 24 maanden",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parser.ExtractAllPrices(tt.text))
		})
	}
}
