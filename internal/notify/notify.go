// Package notify delivers registration confirmation emails, either inline
// over SMTP or through the work queue drained by cmd/worker.
package notify

import (
	"context"
	"errors"
	"time"
)

// MessageType tags queued registration emails.
const MessageType = "registration_email"

// QueueKey is the redis list shared by the API and cmd/worker.
const QueueKey = "gradportal:notifications"

// ErrDisabled is returned by the disabled notifier.
var ErrDisabled = errors.New("notifications disabled")

// Notice is one registration confirmation.
type Notice struct {
	To           string    `json:"to"`
	Name         string    `json:"name"`
	RollNo       string    `json:"rollno"`
	Branch       string    `json:"branch"`
	ReferenceID  string    `json:"referenceId"`
	Attending    bool      `json:"attending"`
	GuestCount   int       `json:"guestCount"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Delivery says how far a notice got.
type Delivery string

const (
	DeliverySent   Delivery = "sent"
	DeliveryQueued Delivery = "queued"
)

// Notifier is what the registration flow talks to.
type Notifier interface {
	// Enabled is false when no transport is configured.
	Enabled() bool
	Notify(ctx context.Context, n Notice) (Delivery, error)
}

// Sender performs a single synchronous delivery.
type Sender interface {
	Send(ctx context.Context, n Notice) error
}

// Disabled is used when SMTP is not configured.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Notify(context.Context, Notice) (Delivery, error) { return "", ErrDisabled }

// Inline sends on the caller's goroutine.
type Inline struct {
	Sender Sender
}

func (i Inline) Enabled() bool { return i.Sender != nil }

func (i Inline) Notify(ctx context.Context, n Notice) (Delivery, error) {
	if i.Sender == nil {
		return "", ErrDisabled
	}
	if err := i.Sender.Send(ctx, n); err != nil {
		return "", err
	}
	return DeliverySent, nil
}
