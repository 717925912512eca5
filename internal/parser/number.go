package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseNumber converts a numeral written with either "." or "," as decimal mark.
// When both occur, the later one is the decimal mark and the other is a group separator.
// A single separator that occurs more than once is treated as grouping.
func ParseNumber(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := strings.TrimRight(b.String(), ".,")
	if strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) < 0 {
		return 0, fmt.Errorf("%w: %q", ErrParse, text)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		group, dec := ".", ","
		if lastDot > lastComma {
			group, dec = ",", "."
		}
		s = strings.ReplaceAll(s, group, "")
		s = strings.Replace(s, dec, ".", 1)
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParse, text)
	}
	return v, nil
}
