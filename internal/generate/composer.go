package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Email is a composed outreach message.
type Email struct {
	Subject string
	Body    string
	// Generated is false when the template fallback produced the copy.
	Generated bool
}

// Composer turns lead data into copy. A nil Generator means template-only.
type Composer struct {
	gen       Generator
	sender    config.SenderConfig
	maxTokens int64
}

// NewComposer creates a Composer.
func NewComposer(gen Generator, sender config.SenderConfig, maxTokens int64) *Composer {
	if maxTokens <= 0 {
		maxTokens = 800
	}
	return &Composer{gen: gen, sender: sender, maxTokens: maxTokens}
}

// HasGenerator reports whether an AI backend is configured.
func (c *Composer) HasGenerator() bool { return c.gen != nil }

// OutreachEmail writes the first-contact email for lead. AI failures fall
// back to the template, so this never fails.
func (c *Composer) OutreachEmail(ctx context.Context, lead *model.Lead) Email {
	if c.gen != nil {
		text, err := c.gen.Generate(ctx, outreachPrompt(lead, c.sender), c.maxTokens)
		if err == nil {
			if subject, body, ok := parseEmail(text); ok {
				return Email{Subject: subject, Body: body, Generated: true}
			}
			err = eris.New("generate: completion is not subject + body")
		}
		zap.L().Warn("outreach generation failed, using template",
			zap.Int64("lead_id", lead.ID), zap.String("backend", c.gen.Name()), zap.Error(err))
	}
	subject, body := templateEmail(lead, c.sender)
	return Email{Subject: subject, Body: body}
}

// SiteContent writes the copy for lead's prototype site. AI output missing
// any field falls back to the template.
func (c *Composer) SiteContent(ctx context.Context, lead *model.Lead) model.SiteContent {
	if c.gen != nil {
		text, err := c.gen.Generate(ctx, sitePrompt(lead), c.maxTokens)
		if err == nil {
			var content model.SiteContent
			if err = json.Unmarshal([]byte(stripFences(text)), &content); err == nil && content.Complete() {
				return content
			}
			if err == nil {
				err = eris.New("generate: site content incomplete")
			}
		}
		zap.L().Warn("site content generation failed, using template",
			zap.Int64("lead_id", lead.ID), zap.String("backend", c.gen.Name()), zap.Error(err))
	}
	return templateSite(lead)
}

// PrototypeNotice tells lead their prototype is live at url.
func (c *Composer) PrototypeNotice(lead *model.Lead, url string) Email {
	subject, body := templatePrototypeNotice(lead, url, c.sender)
	return Email{Subject: subject, Body: body}
}

// ChatReply continues the conversation with lead. Unlike the other
// operations it fails instead of falling back, so a lead is never sent a
// canned reply when the backend is down; the turn is retried next cycle.
func (c *Composer) ChatReply(ctx context.Context, lead *model.Lead, history []model.Turn) (string, error) {
	if len(history) == 0 {
		return "", eris.New("generate: empty conversation")
	}
	if c.gen == nil {
		return templateChat(lead), nil
	}
	return c.gen.Chat(ctx, ChatSystemPrompt(lead, c.sender), history, c.maxTokens)
}

// ChatSystemPrompt frames the assistant for a lead's conversation.
func ChatSystemPrompt(lead *model.Lead, sender config.SenderConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a web developer", senderName(sender))
	if sender.Company != "" {
		fmt.Fprintf(&b, " at %s", sender.Company)
	}
	fmt.Fprintf(&b, ", talking with %s, a %s", lead.DisplayName(), kind(lead))
	if lead.Location != "" {
		fmt.Fprintf(&b, " in %s", lead.Location)
	}
	b.WriteString(". ")
	if lead.PrototypeURL != nil {
		fmt.Fprintf(&b, "You already sent them a prototype website at %s. ", *lead.PrototypeURL)
	}
	b.WriteString("Be friendly, concise and helpful. Answer their questions and move toward agreeing on a finished website. Reply with the email body only.")
	return b.String()
}

func outreachPrompt(lead *model.Lead, sender config.SenderConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short, personal cold email from %s, a freelance web developer", senderName(sender))
	if sender.Company != "" {
		fmt.Fprintf(&b, " at %s", sender.Company)
	}
	fmt.Fprintf(&b, ", to %s, a %s", lead.DisplayName(), kind(lead))
	if lead.Location != "" {
		fmt.Fprintf(&b, " in %s", lead.Location)
	}
	b.WriteString(". Offer to build them a free prototype of a modern website and ask whether they are interested. ")
	b.WriteString("Ask them to reply \"yes\" if they would like one. Keep it under 150 words.\n\n")
	b.WriteString("Format exactly as:\nSubject: <subject line>\n\n<body>")
	return b.String()
}

func sitePrompt(lead *model.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write website copy for %s, a %s", lead.DisplayName(), kind(lead))
	if lead.Location != "" {
		fmt.Fprintf(&b, " in %s", lead.Location)
	}
	b.WriteString(".\nRespond with JSON only, no prose, using exactly these keys:\n")
	b.WriteString(`{"title": string, "headline": string, "tagline": string, "about": string, "services": [4 strings], "features": [4 strings], "cta": string}`)
	return b.String()
}

// parseEmail splits "Subject: ...\n\nbody" completions.
func parseEmail(text string) (subject, body string, ok bool) {
	text = strings.TrimSpace(text)
	first, rest, found := strings.Cut(text, "\n")
	if !found {
		return "", "", false
	}
	label, value, hasColon := strings.Cut(first, ":")
	if !hasColon || !strings.EqualFold(strings.TrimSpace(strings.Trim(label, "*# ")), "subject") {
		return "", "", false
	}
	subject = strings.TrimSpace(strings.Trim(value, "*"))
	body = strings.TrimSpace(rest)
	if subject == "" || body == "" {
		return "", "", false
	}
	return subject, body, true
}

// stripFences removes a surrounding ```json ... ``` block.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

func senderName(s config.SenderConfig) string {
	if s.Name != "" {
		return s.Name
	}
	return "a freelance web developer"
}

func kind(lead *model.Lead) string {
	if lead.BusinessType != "" {
		return lead.BusinessType
	}
	if lead.Niche != "" {
		return lead.Niche
	}
	return "local business"
}
