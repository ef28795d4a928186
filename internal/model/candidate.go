package model

// DiscoveredCandidate is a raw business result returned by a discovery provider.
type DiscoveredCandidate struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	Website    string `json:"website,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// EnrichmentResult holds contact values found for a lead. Empty means not found.
type EnrichmentResult struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	EmailSource string `json:"email_source,omitempty"`
	PhoneSource string `json:"phone_source,omitempty"`
}

// Empty reports whether nothing was found.
func (r EnrichmentResult) Empty() bool {
	return r.Email == "" && r.Phone == ""
}

// InboundMessage is an unread email fetched from the reply inbox.
type InboundMessage struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
}
