package domain

import "fmt"

// ConversationClass tells how a conversation is addressed on the messaging service.
type ConversationClass string

const (
	ClassUser    ConversationClass = "user"    // one-to-one, never muted
	ClassChat    ConversationClass = "chat"    // multi-user group chat
	ClassChannel ConversationClass = "channel" // broadcast channel, needs an access credential
)

// ParseConversationClass maps a wire value to a known class.
func ParseConversationClass(s string) (ConversationClass, error) {
	switch ConversationClass(s) {
	case ClassUser, ClassChat, ClassChannel:
		return ConversationClass(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownClass, s)
	}
}

// Mutable reports whether the auto-muter handles conversations of this class.
func (c ConversationClass) Mutable() bool {
	return c == ClassChat || c == ClassChannel
}

// NeedsCredential reports whether mute commands for this class carry an access credential.
func (c ConversationClass) NeedsCredential() bool {
	return c == ClassChannel
}

// Conversation identifies a chat or channel. It is comparable and used as a map key.
type Conversation struct {
	ID    string
	Class ConversationClass
}

func (c Conversation) String() string {
	return string(c.Class) + ":" + c.ID
}
