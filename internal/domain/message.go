package domain

import "time"

// Message is one turn in a lead conversation.
// Messages are never mutated after they are persisted.
type Message struct {
	ID        string      `json:"id,omitempty"`
	LeadID    string      `json:"leadId" validate:"required"`
	Role      MessageRole `json:"role" validate:"required,message_role"`
	Content   string      `json:"content"`
	Tokens    int         `json:"tokens" validate:"gte=0"`
	Timestamp time.Time   `json:"timestamp" validate:"required"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewMessage creates an unpersisted message stamped with the current time
func NewMessage(leadID string, role MessageRole, content string, tokens int) *Message {
	return &Message{
		LeadID:    leadID,
		Role:      role,
		Content:   content,
		Tokens:    tokens,
		Timestamp: time.Now().UTC(),
	}
}

// IsPersisted reports whether the message already has a storage identity
func (m *Message) IsPersisted() bool {
	return m.ID != ""
}

// Stamp sets the bookkeeping timestamps
func (m *Message) Stamp(now time.Time, created bool) {
	if created || m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}
