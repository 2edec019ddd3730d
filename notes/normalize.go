package notes

import "strings"

// NormalizeContent upgrades plain-text notes to paragraph markup. Empty or
// blank notes become "", notes that already contain markup are kept as they
// are, and otherwise every line is wrapped in <p></p>.
func NormalizeContent(notes string) string {
	if strings.TrimSpace(notes) == "" {
		return ""
	}

	if strings.Contains(notes, "<") {
		return notes
	}

	var b strings.Builder
	for _, line := range strings.Split(notes, "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString("<p></p>")
			continue
		}

		b.WriteString("<p>")
		b.WriteString(line)
		b.WriteString("</p>")
	}

	return b.String()
}
