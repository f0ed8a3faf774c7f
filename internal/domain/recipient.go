package domain

// Recipient is one resolved delivery target. ExternalID is the upstream
// subscriber identifier and may be empty for ad-hoc recipients.
type Recipient struct {
	ExternalID  string `json:"external_id,omitempty" db:"external_id"`
	Address     string `json:"address" db:"address"`
	DisplayName string `json:"display_name" db:"display_name"`
}

// DeliveryStatus is the durable per-recipient outcome recorded in the store.
type DeliveryStatus string

const (
	DeliveryCompleted DeliveryStatus = "completed"
	DeliveryFailed    DeliveryStatus = "failed"
)
