package chatui

import (
	"errors"
	"strings"

	"github.com/timmy/tubechat/internal/domain"
)

var (
	// ErrBusy is returned by Submit while a reply is still being produced.
	ErrBusy = errors.New("assistant is still replying")
	// ErrEmptyMessage is returned by Submit for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// Conversation is the client-side chat state: the ordered message list and
// whether the assistant is currently producing a reply. It is not safe for
// concurrent use; the UI loop owns it.
type Conversation struct {
	messages  []domain.Message
	producing bool
	err       error
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Messages returns a copy of the message list, placeholder included.
func (c *Conversation) Messages() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Producing reports whether a reply is in flight.
func (c *Conversation) Producing() bool {
	return c.producing
}

// Err returns the failure of the last reply, if any.
func (c *Conversation) Err() error {
	return c.err
}

// Submit appends the user message and an empty assistant placeholder, and
// marks the conversation as producing. It returns the history to send, which
// ends with the new user message.
func (c *Conversation) Submit(text string) ([]domain.Message, error) {
	if c.producing {
		return nil, ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	c.messages = append(c.messages, domain.Message{Role: domain.RoleUser, Content: text})
	history := c.Messages()

	c.messages = append(c.messages, domain.Message{Role: domain.RoleAssistant})
	c.producing = true
	c.err = nil
	return history, nil
}

// Append adds a received fragment to the assistant placeholder. Fragments
// arriving when no reply is in flight are dropped.
func (c *Conversation) Append(fragment string) {
	if !c.producing || len(c.messages) == 0 {
		return
	}
	c.messages[len(c.messages)-1].Content += fragment
}

// Finish ends the reply. A failed reply that produced nothing loses its
// placeholder so the next request does not carry an empty assistant turn.
func (c *Conversation) Finish(err error) {
	if !c.producing {
		return
	}
	c.producing = false
	c.err = err

	last := len(c.messages) - 1
	if err != nil && last >= 0 && c.messages[last].Role == domain.RoleAssistant && c.messages[last].Content == "" {
		c.messages = c.messages[:last]
	}
}

// Reset clears the conversation unless a reply is in flight.
func (c *Conversation) Reset() error {
	if c.producing {
		return ErrBusy
	}
	c.messages = nil
	c.err = nil
	return nil
}
