package model

// SiteContent is the copy rendered into a prototype website.
type SiteContent struct {
	Title    string   `json:"title"`
	Headline string   `json:"headline"`
	Tagline  string   `json:"tagline"`
	About    string   `json:"about"`
	Services []string `json:"services"`
	Features []string `json:"features"`
	CTA      string   `json:"cta"`
}

// Complete reports whether every text field is filled.
func (c SiteContent) Complete() bool {
	return c.Title != "" && c.Headline != "" && c.Tagline != "" && c.About != "" &&
		c.CTA != "" && len(c.Services) > 0 && len(c.Features) > 0
}
