package enrich

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// phoneRe matches digit runs of plausible phone length with common separators.
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().\-]{7,16}\d`)

	preferredMailboxes = []string{"contact", "info", "hello"}

	// Asset-like suffixes that the email regex picks up from markup.
	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}
)

// Contacts holds everything extracted from a set of pages.
type Contacts struct {
	Emails []string
	Phones []string
}

// Extract walks the markup of each page and collects email addresses and
// phone numbers. mailto: and tel: anchors are taken verbatim; visible text is
// scanned with patterns. Phones are normalized to E.164 for region; values
// that do not validate are dropped.
func Extract(pages []string, region string) Contacts {
	emails := newOrderedSet()
	phones := newOrderedSet()

	for _, doc := range pages {
		z := html.NewTokenizer(strings.NewReader(doc))
		skip := 0
		for {
			tt := z.Next()
			if tt == html.ErrorToken {
				break
			}
			switch tt {
			case html.StartTagToken, html.SelfClosingTagToken:
				tok := z.Token()
				switch tok.Data {
				case "script", "style":
					if tt == html.StartTagToken {
						skip++
					}
				case "a":
					for _, attr := range tok.Attr {
						if attr.Key != "href" {
							continue
						}
						href := strings.TrimSpace(attr.Val)
						lower := strings.ToLower(href)
						switch {
						case strings.HasPrefix(lower, "mailto:"):
							addr, _, _ := strings.Cut(href[len("mailto:"):], "?")
							if u, err := url.PathUnescape(addr); err == nil {
								addr = u
							}
							if e := cleanEmail(addr); e != "" {
								emails.add(e)
							}
						case strings.HasPrefix(lower, "tel:"):
							if p, ok := NormalizePhone(href[len("tel:"):], region); ok {
								phones.add(p)
							}
						}
					}
				}
			case html.EndTagToken:
				name, _ := z.TagName()
				if (string(name) == "script" || string(name) == "style") && skip > 0 {
					skip--
				}
			case html.TextToken:
				if skip > 0 {
					continue
				}
				text := string(z.Text())
				for _, m := range emailRe.FindAllString(text, -1) {
					if e := cleanEmail(m); e != "" {
						emails.add(e)
					}
				}
				for _, m := range phoneRe.FindAllString(text, -1) {
					if p, ok := NormalizePhone(m, region); ok {
						phones.add(p)
					}
				}
			}
		}
	}
	return Contacts{Emails: emails.items, Phones: phones.items}
}

// BestEmail returns the address to contact, preferring generic business
// mailboxes (contact@, info@, hello@) and otherwise the first one found.
func BestEmail(emails []string) string {
	if len(emails) == 0 {
		return ""
	}
	ranked := make([]string, len(emails))
	copy(ranked, emails)
	sort.SliceStable(ranked, func(i, j int) bool {
		return mailboxRank(ranked[i]) < mailboxRank(ranked[j])
	})
	return ranked[0]
}

func mailboxRank(email string) int {
	local, _, _ := strings.Cut(email, "@")
	for i, p := range preferredMailboxes {
		if local == p {
			return i
		}
	}
	return len(preferredMailboxes)
}

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return cleanEmail(s) != "" && cleanEmail(s) == strings.ToLower(strings.TrimSpace(s))
}

func cleanEmail(s string) string {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), ".,;:<>()[]\"'"))
	m := emailRe.FindString(s)
	if m == "" || m != s {
		return ""
	}
	for _, suf := range assetSuffixes {
		if strings.HasSuffix(m, suf) {
			return ""
		}
	}
	if strings.Contains(m, "example.com") || strings.HasPrefix(m, "noreply@") || strings.HasPrefix(m, "no-reply@") {
		return ""
	}
	return m
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
