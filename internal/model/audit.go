package model

import (
	"encoding/json"
	"time"
)

// CampaignStatus records the outcome of one outreach attempt.
type CampaignStatus string

const (
	CampaignSent   CampaignStatus = "sent"
	CampaignFailed CampaignStatus = "failed"
)

// EmailCampaign is an append-only audit row for an outreach attempt.
type EmailCampaign struct {
	ID        int64          `json:"id"`
	LeadID    int64          `json:"lead_id"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Status    CampaignStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// WebsitePrototype is an append-only audit row for a published demo site.
type WebsitePrototype struct {
	ID        int64           `json:"id"`
	LeadID    int64           `json:"lead_id"`
	URL       string          `json:"url"`
	Content   json.RawMessage `json:"content,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stats aggregates lead counts for the dashboard.
type Stats struct {
	Total           int            `json:"total"`
	EmailsSent      int            `json:"emails_sent"`
	WebsitesCreated int            `json:"websites_created"`
	StatusBreakdown map[Status]int `json:"status_breakdown"`
	ConversionRate  float64        `json:"conversion_rate"`
}
