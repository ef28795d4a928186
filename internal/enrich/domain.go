package enrich

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of website, e.g.
// "https://shop.acme.co.in/about" -> "acme.co.in".
func RegistrableDomain(website string) (string, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return "", eris.New("enrich: empty website")
	}
	if !strings.Contains(website, "://") {
		website = "http://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return "", eris.Wrap(err, "enrich: parse website")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", eris.Errorf("enrich: no host in %q", website)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", eris.Wrapf(err, "enrich: registrable domain of %s", host)
	}
	return domain, nil
}
