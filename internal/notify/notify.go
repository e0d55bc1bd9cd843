// Package notify composes and delivers the emails the dispatcher sends.
// Delivery goes through a Sender; the production sender forwards the
// rendered message to an automation webhook that relays it as email.
package notify

import (
	"context"
	"errors"
)

// ErrDelivery is returned when a notification could not be handed to the
// delivery channel.
var ErrDelivery = errors.New("notification delivery failed")

// Notification is one rendered email.
type Notification struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a notification.  Implementations wrap failures with
// ErrDelivery.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}
