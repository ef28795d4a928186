package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusNew            Status = "new"
	StatusContacted      Status = "contacted"
	StatusRepliedYes     Status = "replied_yes"
	StatusRepliedNo      Status = "replied_no"
	StatusPrototypeSent  Status = "prototype_sent"
	StatusInConversation Status = "in_conversation"
)

// AllStatuses lists every lifecycle status in pipeline order.
var AllStatuses = []Status{
	StatusNew,
	StatusContacted,
	StatusRepliedYes,
	StatusRepliedNo,
	StatusPrototypeSent,
	StatusInConversation,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Active reports whether a lead in this status is still worth enriching.
func (s Status) Active() bool {
	return s.Valid() && s != StatusRepliedNo
}

// Lead is a prospective business and its full outreach record.
type Lead struct {
	ID int64 `json:"id"`

	// Contact fields. Enrichment only ever fills nil values.
	Name         *string `json:"name,omitempty"`
	BusinessName *string `json:"business_name,omitempty"`
	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Address      *string `json:"address,omitempty"`

	// Classification, fixed at discovery.
	Niche        string `json:"niche"`
	BusinessType string `json:"business_type,omitempty"`
	Location     string `json:"location"`

	// Provenance.
	Website  *string `json:"website,omitempty"`
	Source   string  `json:"source,omitempty"`
	SourceID *string `json:"source_id,omitempty"`
	DedupKey string  `json:"dedup_key"`

	// IdentityKeys are every identity the lead was discovered under (website,
	// provider place id, name and address). DedupKey is always one of them.
	IdentityKeys []string `json:"identity_keys,omitempty"`

	EmailSent     bool       `json:"email_sent"`
	EmailSentAt   *time.Time `json:"email_sent_at,omitempty"`
	ReplyCount    int        `json:"reply_count"`
	LastContacted *time.Time `json:"last_contacted,omitempty"`

	PrototypeURL     *string `json:"prototype_url,omitempty"`
	PrototypeCreated bool    `json:"prototype_created"`

	EnrichAttemptedAt *time.Time `json:"enrich_attempted_at,omitempty"`

	Turns []Turn `json:"turns,omitempty"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the best human-readable name for the lead.
func (l *Lead) DisplayName() string {
	if v := Deref(l.BusinessName); v != "" {
		return v
	}
	if v := Deref(l.Name); v != "" {
		return v
	}
	return "your business"
}

// MissingContact reports whether email or phone still needs enrichment.
func (l *Lead) MissingContact() bool {
	return l.Email == nil || l.Phone == nil
}

// LastTurn returns the most recent conversation turn, or nil.
func (l *Lead) LastTurn() *Turn {
	if len(l.Turns) == 0 {
		return nil
	}
	return &l.Turns[len(l.Turns)-1]
}

// Ptr returns a pointer to a trimmed copy of s, or nil when s is blank.
func Ptr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the value behind p, or "" for nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
