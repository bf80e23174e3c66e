package domain

import "time"

// Event is an inbound update from the MessageSource.
type Event interface {
	// DeliveryID identifies the gateway delivery that carried the event, or "".
	DeliveryID() string
	event()
}

// MessageEvent reports a message observed in a conversation.
type MessageEvent struct {
	Conversation Conversation
	SenderID     string
	ReceivedAt   time.Time
	Delivery     string
}

func (e MessageEvent) DeliveryID() string { return e.Delivery }

func (MessageEvent) event() {}

// SettingsChangedEvent reports notification settings changed outside the service,
// typically by the user muting or unmuting a conversation by hand.
type SettingsChangedEvent struct {
	Conversation Conversation
	MuteUntil    time.Time
	Silent       bool
	Delivery     string
}

func (e SettingsChangedEvent) DeliveryID() string { return e.Delivery }

func (SettingsChangedEvent) event() {}

// MessageSource produces the inbound event stream. The channel is closed when the
// source shuts down.
type MessageSource interface {
	Events() <-chan Event
}
