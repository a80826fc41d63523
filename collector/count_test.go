package collector

import "testing"

func TestParseCount(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"1.2万", 12000},
		{"5万", 50000},
		{"3.4M", 3400000},
		{"2M", 2000000},
		{"1.5K", 1500},
		{"12k", 12000},
		{"1,234", 1234},
		{"1,234,567", 1234567},
		{"987", 987},
		{"0", 0},
		{" 42 ", 42},
		{"", 0},
		{"N/A", 0},
		{"likes", 0},
		{"1.2.3K", 0},
	}
	for _, tc := range cases {
		if got := ParseCount(tc.raw); got != tc.want {
			t.Errorf("ParseCount(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
