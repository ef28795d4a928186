package enrich

import (
	"strings"

	"github.com/sells-group/prospect-cli/internal/discovery"
)

// GuessEmails expands patterns such as "{first}.{last}@{domain}" for a person
// name and domain. Name tokens are folded to ASCII. Patterns that need a
// token the name lacks are skipped, and results failing validation are
// dropped. Order follows patterns.
func GuessEmails(name, domain string, patterns []string) []string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}
	tokens := strings.Fields(asciiOnly(discovery.Fold(name)))
	var first, last string
	if len(tokens) > 0 {
		first = tokens[0]
	}
	if len(tokens) > 1 {
		last = tokens[len(tokens)-1]
	}

	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		if (strings.Contains(p, "{first}") && first == "") || (strings.Contains(p, "{last}") && last == "") {
			continue
		}
		r := strings.NewReplacer("{first}", first, "{last}", last, "{domain}", domain,
			"{f}", initial(first), "{l}", initial(last))
		e := r.Replace(p)
		if !ValidEmail(e) {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

func initial(s string) string {
	if s == "" {
		return ""
	}
	return s[:1]
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, s)
}
