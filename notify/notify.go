// Package notify reports transfer outcomes to chat and mail sinks.
//
// Notifiers are fire and forget: the copier logs delivery failures and
// moves on, so a broken webhook never turns a finished transfer into a
// failed one.
package notify

import "context"

// Message is one report to deliver.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers messages to one sink.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

func (m Message) text() string {
	switch {
	case m.Body == "":
		return m.Subject
	case m.Subject == "":
		return m.Body
	}
	return m.Subject + "\n" + m.Body
}
