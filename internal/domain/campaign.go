package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft          CampaignStatus = "draft"
	CampaignQueued         CampaignStatus = "queued"
	CampaignSending        CampaignStatus = "sending"
	CampaignSent           CampaignStatus = "sent"
	CampaignPartialSuccess CampaignStatus = "partial_success"
	CampaignFailed         CampaignStatus = "failed"
	CampaignCancelled      CampaignStatus = "cancelled"
)

// Campaign represents a bulk-notification campaign with its content and
// delivery configuration. The counter fields are populated at finalization.
type Campaign struct {
	ID         string            `json:"id" db:"id"`
	Name       string            `json:"name" db:"name"`
	Subject    string            `json:"subject" db:"subject"`
	FromName   string            `json:"from_name" db:"from_name"`
	FromEmail  string            `json:"from_email" db:"from_email"`
	ReplyTo    string            `json:"reply_to" db:"reply_to"`
	Body       string            `json:"body" db:"body"`
	TemplateID *string           `json:"template_id" db:"template_id"`
	ListID     *string           `json:"list_id" db:"list_id"`
	Variables  map[string]string `json:"variables" db:"variables"`
	Status     CampaignStatus    `json:"status" db:"status"`

	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	CompletedCount  int `json:"completed_count" db:"completed_count"`
	FailedCount     int `json:"failed_count" db:"failed_count"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignPartialSuccess ||
		c.Status == CampaignFailed || c.Status == CampaignCancelled
}

// Totals carries the aggregate counters persisted at finalization.
type Totals struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
