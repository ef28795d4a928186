package mail

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	// Attribution lines mail clients put above a quoted original.
	quoteHeaderRe = regexp.MustCompile(`(?i)^(on\s.+\swrote:|-+\s*original message\s*-+|from:\s.+@.+)$`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	spaceRunRe    = regexp.MustCompile(`[ \t\r\n\f]+`)
)

// ReplyText returns only what the sender wrote, dropping the quoted original
// below it. The quoted outreach text itself contains "yes".
func ReplyText(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if quoteHeaderRe.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	out := strings.Join(kept, "\n")
	return strings.TrimSpace(blankRunRe.ReplaceAllString(out, "\n\n"))
}

// HTMLToText flattens an HTML body to text, one line per block element.
func HTMLToText(doc string) string {
	if strings.TrimSpace(doc) == "" {
		return ""
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(doc))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			lines := strings.Split(b.String(), "\n")
			for i, l := range lines {
				lines[i] = strings.TrimSpace(l)
			}
			return strings.TrimSpace(blankRunRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li", "tr", "blockquote":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div":
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			b.WriteString(spaceRunRe.ReplaceAllString(string(z.Text()), " "))
		}
	}
}
