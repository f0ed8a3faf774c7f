// Package transport defines the mail transport contract and its ESP-backed
// implementations. A transport performs exactly one delivery attempt; retry
// policy lives with the caller.
package transport

import (
	"context"
	"time"
)

// Message is a fully-rendered email ready for delivery.
type Message struct {
	CampaignID  string
	RecipientID string
	FromName    string
	FromEmail   string
	ReplyTo     string
	To          string
	ToName      string
	Subject     string
	HTMLBody    string
	TextBody    string
}

// Result is the transport-assigned outcome of a successful send.
type Result struct {
	MessageID string
	SentAt    time.Time
}

// Transport attempts delivery of a single message. A non-nil error means the
// attempt failed and carries a human-readable reason.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}
