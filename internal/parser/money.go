package parser

import (
	"regexp"
	"strings"
)

var (
	moneyPattern        = regexp.MustCompile(`(€\s*)?(\d{1,3}(?:[.,]\d{3})*[.,]\d{2}|\d+[.,]?\d*)`)
	quantityLinePattern = regexp.MustCompile(`(?i)\b(\d+[.,]?\d*)\s*(kg|g|l|ml|cl|dl)\b`)
)

// ExtractMoney returns the first plausible currency amount in a block of text.
// Lines that look like a packaging size ("1,5 l") are skipped; if nothing is
// found that way, the whole block is scanned once more without the filter.
func ExtractMoney(text string) (float64, bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || quantityLinePattern.MatchString(line) {
			continue
		}
		if m := moneyPattern.FindStringSubmatch(line); m != nil {
			if v, err := ParseNumber(m[2]); err == nil {
				return v, true
			}
		}
	}

	if m := moneyPattern.FindStringSubmatch(text); m != nil {
		if v, err := ParseNumber(m[2]); err == nil {
			return v, true
		}
	}
	return 0, false
}
