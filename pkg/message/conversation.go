package message

import "sync"

// Conversation is an append-only message log. Entries are copied on the way in
// and on the way out, so callers can never rewrite history.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds messages to the end of the log.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range msgs {
		c.messages = append(c.messages, msg.clone())
	}
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Messages returns a copy of the whole log.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	for i, msg := range c.messages {
		out[i] = msg.clone()
	}
	return out
}

// Stage returns a copy of the messages recorded for one stage, in order.
func (c *Conversation) Stage(name string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Message
	for _, msg := range c.messages {
		if msg.Stage == name {
			out = append(out, msg.clone())
		}
	}
	return out
}

// Last returns the most recent message, if any.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1].clone(), true
}
