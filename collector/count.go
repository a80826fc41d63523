package collector

import (
	"strconv"
	"strings"
)

// ParseCount normalises a display count string ("1.2万", "3.4M", "1,234") to
// an integer. Unparseable input yields 0 — a missing count must never abort
// collection, it just fails the popularity filter downstream.
func ParseCount(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")

	// 万 before the Latin suffixes: a CJK-locale count like "1.2万" must
	// scale by 10000, not fall through to the plain-number path.
	switch {
	case strings.HasSuffix(s, "万"):
		return scaled(strings.TrimSuffix(s, "万"), 10_000)
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		return scaled(s[:len(s)-1], 1_000_000)
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		return scaled(s[:len(s)-1], 1_000)
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(n)
}

func scaled(s string, factor float64) int {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(n * factor)
}
