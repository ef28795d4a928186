package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

type fakeGenerator struct {
	text    string
	err     error
	prompts []string
	system  string
	history []model.Turn
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ int64) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.text, f.err
}

func (f *fakeGenerator) Chat(_ context.Context, system string, history []model.Turn, _ int64) (string, error) {
	f.system = system
	f.history = history
	return f.text, f.err
}

var sender = config.SenderConfig{Name: "Asha", Email: "asha@studio.in", Company: "Pixel Studio"}

func bakery() *model.Lead {
	return &model.Lead{ID: 7, BusinessName: model.Ptr("Acme Bakery"), Niche: "bakery", Location: "Pune"}
}

func TestOutreachEmail_Template(t *testing.T) {
	c := NewComposer(nil, sender, 0)
	email := c.OutreachEmail(context.Background(), bakery())

	assert.False(t, email.Generated)
	assert.Equal(t, "Professional bakery website for Acme Bakery", email.Subject)
	assert.Contains(t, email.Body, "Hi Acme Bakery team")
	assert.Contains(t, email.Body, "trusted bakery in Pune")
	assert.Contains(t, email.Body, "Asha\nPixel Studio")
}

func TestOutreachEmail_Generated(t *testing.T) {
	gen := &fakeGenerator{text: "**Subject:** A fresh website for Acme Bakery\n\nHi there,\nWould you like a free prototype?"}
	email := NewComposer(gen, sender, 0).OutreachEmail(context.Background(), bakery())

	assert.True(t, email.Generated)
	assert.Equal(t, "A fresh website for Acme Bakery", email.Subject)
	assert.Equal(t, "Hi there,\nWould you like a free prototype?", email.Body)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Acme Bakery, a bakery in Pune")
}

func TestOutreachEmail_FallsBack(t *testing.T) {
	for name, gen := range map[string]*fakeGenerator{
		"backend error": {err: errors.New("503")},
		"unparseable":   {text: "Hello! Here is an email for you."},
		"missing body":  {text: "Subject: hi\n\n   "},
	} {
		t.Run(name, func(t *testing.T) {
			email := NewComposer(gen, sender, 0).OutreachEmail(context.Background(), bakery())
			assert.False(t, email.Generated)
			assert.Equal(t, "Professional bakery website for Acme Bakery", email.Subject)
		})
	}
}

func TestSiteContent(t *testing.T) {
	t.Run("template", func(t *testing.T) {
		got := NewComposer(nil, sender, 0).SiteContent(context.Background(), bakery())
		assert.True(t, got.Complete())
		assert.Equal(t, "Acme Bakery - Professional bakery in Pune", got.Title)
		assert.Equal(t, "Bakery Services", got.Services[0])
	})

	t.Run("generated json in fences", func(t *testing.T) {
		gen := &fakeGenerator{text: "```json\n" + `{"title":"T","headline":"H","tagline":"Tg","about":"A","services":["s"],"features":["f"],"cta":"C"}` + "\n```"}
		got := NewComposer(gen, sender, 0).SiteContent(context.Background(), bakery())
		assert.Equal(t, model.SiteContent{Title: "T", Headline: "H", Tagline: "Tg", About: "A",
			Services: []string{"s"}, Features: []string{"f"}, CTA: "C"}, got)
	})

	t.Run("incomplete json falls back", func(t *testing.T) {
		gen := &fakeGenerator{text: `{"title":"T"}`}
		got := NewComposer(gen, sender, 0).SiteContent(context.Background(), bakery())
		assert.Equal(t, "Welcome to Acme Bakery", got.Headline)
	})
}

func TestChatReply(t *testing.T) {
	lead := bakery()
	lead.PrototypeURL = model.Ptr("http://localhost:8080/sites/7.html")
	history := []model.Turn{
		{Seq: 1, Role: model.RoleUser, Content: "Can you add a menu page?"},
	}

	gen := &fakeGenerator{text: "Sure, I will add one."}
	reply, err := NewComposer(gen, sender, 0).ChatReply(context.Background(), lead, history)
	require.NoError(t, err)
	assert.Equal(t, "Sure, I will add one.", reply)
	assert.Contains(t, gen.system, "Asha")
	assert.Contains(t, gen.system, "http://localhost:8080/sites/7.html")
	assert.Equal(t, history, gen.history)

	_, err = NewComposer(&fakeGenerator{err: errors.New("down")}, sender, 0).ChatReply(context.Background(), lead, history)
	assert.Error(t, err, "chat does not fall back to a canned reply")

	canned, err := NewComposer(nil, sender, 0).ChatReply(context.Background(), lead, history)
	require.NoError(t, err)
	assert.Contains(t, canned, "Acme Bakery")

	_, err = NewComposer(gen, sender, 0).ChatReply(context.Background(), lead, nil)
	assert.Error(t, err)
}

func TestParseEmail(t *testing.T) {
	s, b, ok := parseEmail("Subject: Hello\nBody line")
	assert.True(t, ok)
	assert.Equal(t, "Hello", s)
	assert.Equal(t, "Body line", b)

	_, _, ok = parseEmail("Title: Hello\n\nBody")
	assert.False(t, ok)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(` {"a":1} `))
}

func TestPrototypeNotice(t *testing.T) {
	c := NewComposer(nil, sender, 0)
	email := c.PrototypeNotice(bakery(), "https://sites.example/7-abc.html")
	assert.Equal(t, "Your website prototype for Acme Bakery is ready", email.Subject)
	assert.Contains(t, email.Body, "https://sites.example/7-abc.html")
	assert.Contains(t, email.Body, "Pixel Studio")
	assert.False(t, email.Generated)
}
