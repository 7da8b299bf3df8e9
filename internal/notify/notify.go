// Package notify describes how the workflow talks back to users.
package notify

import "context"

// Kind classifies outbound messages so transports can pick presentation.
type Kind string

const (
	KindPrompt   Kind = "prompt"
	KindReject   Kind = "reject"
	KindSummary  Kind = "summary"
	KindPayment  Kind = "payment"
	KindDelivery Kind = "delivery"
	KindNotice   Kind = "notice"
)

// Message is one outbound text with optional reply choices.
type Message struct {
	Text    string
	Options []string
	Kind    Kind
}

// Notifier delivers messages to users. Send returns the platform message id, or 0 when unknown.
type Notifier interface {
	Send(ctx context.Context, userID int64, msg Message) (int, error)
	Delete(ctx context.Context, userID int64, messageID int) error
}
