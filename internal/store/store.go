// Package store persists leads, their conversation turns and the outreach
// audit trail. Two backends are provided: SQLite for single-host runs and
// Postgres for shared deployments.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
)

// LeadFilter selects leads. Zero values are ignored.
type LeadFilter struct {
	Statuses     []model.Status `json:"statuses,omitempty"`
	Niche        string         `json:"niche,omitempty"`
	Location     string         `json:"location,omitempty"`
	BusinessType string         `json:"business_type,omitempty"`

	// HasEmail restricts to leads with (true) or without (false) an email.
	HasEmail *bool `json:"has_email,omitempty"`
	// EmailSent restricts on the email_sent flag.
	EmailSent *bool `json:"email_sent,omitempty"`
	// PrototypeMissing restricts to leads with no prototype_url.
	PrototypeMissing bool `json:"prototype_missing,omitempty"`
	// MissingContact restricts to leads lacking email or phone.
	MissingContact bool `json:"missing_contact,omitempty"`
	// AwaitingReply restricts to leads whose latest turn was written by the user.
	AwaitingReply bool `json:"awaiting_reply,omitempty"`
	// EnrichDueBefore restricts to leads never enriched or last enriched
	// before the given time.
	EnrichDueBefore *time.Time `json:"enrich_due_before,omitempty"`
	// OrderByEnrichDue orders never enriched leads first, then by oldest
	// enrichment attempt.
	OrderByEnrichDue bool `json:"order_by_enrich_due,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// LeadPatch is a partial update. Nil fields are left untouched and an empty
// contact field clears the column.
//
// ExpectStatus turns the update into a compare-and-set on the current status;
// when the stored status differs the update is rejected with KindStale.
type LeadPatch struct {
	Name         *string `json:"name,omitempty"`
	BusinessName *string `json:"business_name,omitempty"`
	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Address      *string `json:"address,omitempty"`
	Website      *string `json:"website,omitempty"`

	EmailSent       *bool      `json:"email_sent,omitempty"`
	EmailSentAt     *time.Time `json:"email_sent_at,omitempty"`
	LastContacted   *time.Time `json:"last_contacted,omitempty"`
	ReplyCountDelta int        `json:"reply_count_delta,omitempty"`
	// ClearEmailSent resets email_sent and email_sent_at so outreach picks
	// the lead up again.
	ClearEmailSent bool `json:"clear_email_sent,omitempty"`

	EnrichAttemptedAt *time.Time `json:"enrich_attempted_at,omitempty"`

	PrototypeURL     *string `json:"prototype_url,omitempty"`
	PrototypeCreated *bool   `json:"prototype_created,omitempty"`
	ClearPrototype   bool    `json:"clear_prototype,omitempty"`
	// RequireNoPrototype rejects the update if prototype_url is already set.
	RequireNoPrototype bool `json:"require_no_prototype,omitempty"`

	Status       *model.Status `json:"status,omitempty"`
	ExpectStatus *model.Status `json:"expect_status,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Leads
	CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error)
	GetLead(ctx context.Context, id int64) (*model.Lead, error)
	GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error)
	// DedupKeysExist reports whether any of keys already identifies a lead.
	DedupKeysExist(ctx context.Context, keys []string) (bool, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	UpdateLead(ctx context.Context, id int64, patch LeadPatch) (*model.Lead, error)
	FillContact(ctx context.Context, id int64, found model.EnrichmentResult) (*model.Lead, error)
	DeleteLead(ctx context.Context, id int64) error

	// Conversation
	AppendTurn(ctx context.Context, leadID int64, role model.Role, content string) (*model.Turn, error)
	ListTurns(ctx context.Context, leadID int64) ([]model.Turn, error)

	// Audit
	RecordCampaign(ctx context.Context, c *model.EmailCampaign) error
	ListCampaigns(ctx context.Context, leadID int64) ([]model.EmailCampaign, error)
	RecordPrototype(ctx context.Context, leadID int64, url string, content json.RawMessage) error
	ListPrototypes(ctx context.Context, leadID int64) ([]model.WebsitePrototype, error)

	// Inbox bookkeeping. Returns false if the message was already recorded.
	MarkMessageProcessed(ctx context.Context, messageID string, leadID int64) (bool, error)

	Stats(ctx context.Context) (*model.Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
