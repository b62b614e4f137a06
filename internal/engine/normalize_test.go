package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicetools/template-engine/internal/template"
)

func dutchNormalizer() normalizer {
	return newNormalizer(&template.Template{
		DateFormat:         "%d-%m-%Y",
		DecimalSeparator:   ",",
		ThousandsSeparator: ".",
	})
}

func TestAmountFormats(t *testing.T) {
	n := dutchNormalizer()

	cases := map[string]string{
		"1.120,60":  "1120.6",
		"1,120.60":  "1120.6",
		"1120,60":   "1120.6",
		"1120.60":   "1120.6",
		"€ 45,00":   "45",
		"€1.279,00": "1279",
		"1,120":     "1120",
		"4,95":      "4.95",
		"-12,50":    "-12.5",
	}
	for in, want := range cases {
		d, err := n.Amount(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, d.String(), "input %q", in)
	}
}

func TestAmountRejectsGarbage(t *testing.T) {
	n := dutchNormalizer()
	_, err := n.Amount("n/a")
	assert.Error(t, err)
	_, err = n.Amount("")
	assert.Error(t, err)
}

func TestPercentage(t *testing.T) {
	n := dutchNormalizer()
	d, err := n.Percentage("21%")
	require.NoError(t, err)
	assert.Equal(t, "21", d.String())

	d, err = n.Percentage("21,5 %")
	require.NoError(t, err)
	assert.Equal(t, "21.5", d.String())
}

func TestDateTemplateFormat(t *testing.T) {
	n := dutchNormalizer()
	d, err := n.Date("15-03-2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), d)
}

func TestDateDutchMonthNames(t *testing.T) {
	n := dutchNormalizer()
	d, err := n.Date("12 maart 2024")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), d)

	d, err = n.Date("1 augustus 2023")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC), d)
}

func TestDateFallbackLayouts(t *testing.T) {
	n := dutchNormalizer()
	for _, in := range []string{"15.03.2025", "15/03/2025", "2025-03-15"} {
		d, err := n.Date(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), d, "input %q", in)
	}
}

func TestDateUnparseable(t *testing.T) {
	n := dutchNormalizer()
	_, err := n.Date("morgen")
	assert.Error(t, err)
}

func TestStrftimeToLayout(t *testing.T) {
	assert.Equal(t, "02-01-2006", strftimeToLayout("%d-%m-%Y"))
	assert.Equal(t, "02 January 2006", strftimeToLayout("%d %B %Y"))
	assert.Equal(t, "2006-01-02", strftimeToLayout("%Y-%m-%d"))
	assert.Equal(t, "", strftimeToLayout("%Q"))
}
