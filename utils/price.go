package utils

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// brlNumberRegexp captures the first number written with Brazilian separators.
var brlNumberRegexp = regexp.MustCompile(`\d[\d.]*(?:,\d+)?`)

// ParseBRL converts a display price such as "R$ 45.000,00" into 45000.
// "." is a thousands separator and "," the decimal separator. Anything that
// cannot be parsed yields 0.
func ParseBRL(raw string) float64 {
	match := brlNumberRegexp.FindString(raw)
	if match == "" {
		return 0
	}

	cleaned := strings.ReplaceAll(match, ".", "")
	cleaned = strings.Replace(cleaned, ",", ".", 1)

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

var brlPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders v as a Brazilian currency string, e.g. "R$ 45.000,00".
func FormatBRL(v float64) string {
	return "R$ " + brlPrinter.Sprintf("%.2f", v)
}
