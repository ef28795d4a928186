package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const contactPage = `<html><head><script>var x = "tracker@cdn.net";</script>
<style>.a{content:"style@cdn.net"}</style></head><body>
<a href="mailto:Owner@Acme.in?subject=Hi">Write to us</a>
<p>Reach us at info@acme.in or call +91 98450 12345.</p>
<p>logo@2x.png</p>
<a href="tel:+16502530000">US office</a>
</body></html>`

func TestExtract(t *testing.T) {
	got := Extract([]string{contactPage}, "IN")
	assert.Equal(t, []string{"owner@acme.in", "info@acme.in"}, got.Emails)
	assert.Equal(t, []string{"+919845012345", "+16502530000"}, got.Phones)
}

func TestExtract_DedupsAcrossPages(t *testing.T) {
	got := Extract([]string{
		`<p>hello@acme.in</p>`,
		`<a href="mailto:hello@acme.in">mail</a><a href="tel:abc">bad</a>`,
	}, "IN")
	assert.Equal(t, []string{"hello@acme.in"}, got.Emails)
	assert.Empty(t, got.Phones)
}

func TestBestEmail(t *testing.T) {
	assert.Equal(t, "info@acme.in", BestEmail([]string{"ravi@acme.in", "info@acme.in"}))
	assert.Equal(t, "contact@acme.in", BestEmail([]string{"hello@acme.in", "contact@acme.in"}))
	assert.Equal(t, "ravi@acme.in", BestEmail([]string{"ravi@acme.in", "sales@acme.in"}))
	assert.Equal(t, "", BestEmail(nil))
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ravi.kumar@acme.in", true},
		{"Ravi@Acme.in", true},
		{"ravi@acme", false},
		{"not an email", false},
		{"logo@2x.png", false},
		{"noreply@acme.in", false},
		{"a b@acme.in", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidEmail(tt.in))
		})
	}
}
