package invidious

import (
	"bufio"
	"html"
	"regexp"
	"strings"
)

var vttTagPattern = regexp.MustCompile(`<[^>]*>`)

// ParseVTT extracts cue payload text from a WebVTT document and joins it with
// single spaces. Consecutive duplicate lines, common in auto-generated
// captions, are collapsed.
func ParseVTT(doc string) string {
	var (
		parts    []string
		last     string
		inHeader = true
		inNote   bool
	)

	scanner := bufio.NewScanner(strings.NewReader(doc))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			inHeader = false
			inNote = false
			continue
		}
		if inHeader || inNote {
			continue
		}
		if strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION") {
			inNote = true
			continue
		}
		if strings.Contains(line, "-->") || isCueIdentifier(line) {
			continue
		}

		text := strings.Join(strings.Fields(html.UnescapeString(vttTagPattern.ReplaceAllString(line, ""))), " ")
		if text == "" || text == last {
			continue
		}
		parts = append(parts, text)
		last = text
	}
	return strings.Join(parts, " ")
}

// isCueIdentifier reports whether line is a bare numeric cue id.
func isCueIdentifier(line string) bool {
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
