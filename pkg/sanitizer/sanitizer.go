package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var reBlankLines = regexp.MustCompile(`\n{3,}`)

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == '\t' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = TrimAndNormalize(line)
	}
	return strings.Join(lines, "\n")
}

func collapseBlankLines(s string) string {
	return strings.TrimSpace(reBlankLines.ReplaceAllString(s, "\n\n"))
}

// SanitizeMessage cleans a proposal message. Line breaks survive, at most one
// blank line between paragraphs.
func SanitizeMessage(input string) string {
	p := Pipeline{
		stripControl,
		normalizeLines,
		collapseBlankLines,
	}
	return p.Apply(input)
}

// SanitizeCondition cleans a single proposal condition to one line.
func SanitizeCondition(input string) string {
	p := Pipeline{
		stripControl,
		TrimAndNormalize,
	}
	return p.Apply(input)
}

func SanitizeConditions(conditions []string) []string {
	return NormalizeStringSlice(conditions, SanitizeCondition)
}

func SanitizeTitle(input string) string {
	return SanitizeCondition(input)
}
