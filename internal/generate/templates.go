package generate

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

var titleCase = cases.Title(language.English)

func templateEmail(lead *model.Lead, sender config.SenderConfig) (string, string) {
	name := lead.DisplayName()
	niche := kind(lead)
	subject := fmt.Sprintf("Professional %s website for %s", niche, name)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s team,\n\n", name)
	fmt.Fprintf(&b, "I noticed %s is a trusted %s", name, niche)
	if lead.Location != "" {
		fmt.Fprintf(&b, " in %s", lead.Location)
	}
	fmt.Fprintf(&b, ". I build modern, conversion-focused websites for %s businesses like yours.\n\n", niche)
	b.WriteString("A professional website helps you:\n")
	b.WriteString("- Attract more customers online\n")
	b.WriteString("- Build credibility and trust\n")
	b.WriteString("- Showcase your services 24/7\n\n")
	b.WriteString("Would you like me to put together a free prototype for you? Just reply \"yes\" and I will send it over.\n\n")
	b.WriteString("Best regards,\n")
	b.WriteString(senderName(sender))
	if sender.Company != "" {
		b.WriteString("\n" + sender.Company)
	}
	return subject, b.String()
}

func templateSite(lead *model.Lead) model.SiteContent {
	name := lead.DisplayName()
	niche := kind(lead)
	location := lead.Location
	where := ""
	if location != "" {
		where = " in " + location
	}
	serving := "its customers"
	if location != "" {
		serving = location
	}
	return model.SiteContent{
		Title:    fmt.Sprintf("%s - Professional %s%s", name, niche, where),
		Headline: "Welcome to " + name,
		Tagline:  fmt.Sprintf("Your trusted %s%s", niche, where),
		About:    fmt.Sprintf("%s is a reputable %s serving %s with quality and reliability.", name, niche, serving),
		Services: []string{titleCase.String(niche) + " Services", "Consultation", "Support", "Custom Solutions"},
		Features: []string{"Experienced Team", "Customer Focused", "Quality Guaranteed", "Affordable Pricing"},
		CTA:      "Contact us today to get started!",
	}
}

func templateChat(lead *model.Lead) string {
	msg := fmt.Sprintf("Thanks for getting back to me! I'd be happy to tailor the prototype for %s further.", lead.DisplayName())
	if lead.PrototypeURL != nil {
		msg += fmt.Sprintf(" You can take another look at it here: %s.", *lead.PrototypeURL)
	}
	return msg + " Let me know what you'd like changed, or a good time for a quick call."
}

func templatePrototypeNotice(lead *model.Lead, url string, sender config.SenderConfig) (string, string) {
	name := lead.DisplayName()
	subject := fmt.Sprintf("Your website prototype for %s is ready", name)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s team,\n\n", name)
	b.WriteString("Thanks for your reply! As promised, here is a first prototype of your new website:\n\n")
	b.WriteString(url + "\n\n")
	b.WriteString("Take a look and let me know what you think. Just reply to this email with any changes you'd like.\n\n")
	b.WriteString("Best regards,\n")
	b.WriteString(senderName(sender))
	if sender.Company != "" {
		b.WriteString("\n" + sender.Company)
	}
	return subject, b.String()
}
