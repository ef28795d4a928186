package discovery

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/prospect-cli/internal/model"
)

// NormalizeURL canonicalizes a website for identity comparison: lowercase
// host without "www.", no scheme, query, fragment or trailing slash. It
// returns "" for values that are not usable websites.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if !strings.Contains(host, ".") {
		return ""
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return host + path
}

// IsDirectoryURL reports whether website belongs to a listing site or social
// network rather than the business itself.
func IsDirectoryURL(website string, blocklist []string) bool {
	u, err := url.Parse(strings.TrimSpace(website))
	if err != nil {
		return false
	}
	if u.Host == "" && !strings.Contains(website, "://") {
		u, err = url.Parse("http://" + strings.TrimSpace(website))
		if err != nil {
			return false
		}
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	for _, blocked := range blocklist {
		blocked = strings.ToLower(blocked)
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

// Fold lowercases s, strips diacritics and collapses everything that is not
// a letter or digit into single spaces.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}), " ")
}

// IdentityKeys derives every identity of a candidate: its normalized
// website, its provider place id, and its folded name and address. The first
// key is the candidate's primary identity. The name key is only included
// without an address when nothing else identifies the candidate.
func IdentityKeys(c model.DiscoveredCandidate) []string {
	var keys []string
	if u := NormalizeURL(c.Website); u != "" {
		keys = append(keys, "url:"+u)
	}
	if id := strings.TrimSpace(c.ExternalID); id != "" {
		keys = append(keys, "place:"+c.Provider+":"+id)
	}
	name := Fold(c.Name)
	if name == "" {
		return keys
	}
	addr := Fold(c.Address)
	if addr != "" || len(keys) == 0 {
		keys = append(keys, "name:"+name+"|"+addr)
	}
	return keys
}

// DedupKey returns the primary identity of a candidate, or "" when it has
// no usable identity.
func DedupKey(c model.DiscoveredCandidate) string {
	keys := IdentityKeys(c)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
