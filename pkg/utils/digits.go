package utils

import (
	"strconv"
	"strings"
)

// Persian and Arabic-Indic digits typed by clients on localized keyboards.
var digitReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4", "۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4", "٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// NormalizeDigits converts Persian and Arabic numerals to ASCII numerals.
func NormalizeDigits(input string) string {
	return digitReplacer.Replace(input)
}

// ParseUint parses a non-negative integer written with any of the
// supported digit sets.
func ParseUint(input string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(NormalizeDigits(input)), 10, 64)
}
