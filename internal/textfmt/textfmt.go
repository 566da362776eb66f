// Package textfmt holds the number formatting shared by the human-readable reports.
package textfmt

import (
	"math"
	"strconv"
	"strings"
)

// Thousands rounds v to an integer and groups digits with commas: 1234567.8 -> "1,234,568".
func Thousands(v float64) string {
	n := int64(math.Round(v))
	if n < 0 {
		return "-" + group(strconv.FormatInt(-n, 10))
	}
	return group(strconv.FormatInt(n, 10))
}

// Amount formats v with two decimals and comma grouped digits: 1234567.891 -> "1,234,567.89".
func Amount(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")
	out := group(whole) + "." + frac
	if v < 0 && s != "0.00" {
		return "-" + out
	}
	return out
}

func group(digits string) string {
	var b strings.Builder
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Shorten returns the first n runes of s followed by "..." when s is longer.
func Shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
