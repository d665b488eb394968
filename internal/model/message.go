package model

import "time"

type Status string

const (
	Pending Status = "pending"
	Sent    Status = "sent"
	Failed  Status = "failed"
)

func (s Status) Terminal() bool { return s == Sent || s == Failed }

type DeliveryMode string

const (
	Single    DeliveryMode = "single"
	Broadcast DeliveryMode = "broadcast"
)

func (m DeliveryMode) Valid() bool { return m == Single || m == Broadcast }

type ScheduledMessage struct {
	ID            string       `json:"id"`
	Mode          DeliveryMode `json:"deliveryMode"`
	ContactID     string       `json:"contactId,omitempty"`
	TargetAddress string       `json:"targetAddress,omitempty"`
	Body          string       `json:"body"`
	ScheduledAt   time.Time    `json:"scheduledAt"`
	Status        Status       `json:"status"`
	ClaimedAt     *time.Time   `json:"claimedAt,omitempty"`
	SentAt        *time.Time   `json:"sentAt,omitempty"`
	LastError     *string      `json:"lastError,omitempty"`
	Recipients    int          `json:"recipients"`
	Delivered     int          `json:"delivered"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Claimed reports whether the scheduler has taken the message for dispatch.
func (m ScheduledMessage) Claimed() bool { return m.ClaimedAt != nil }

// Outcome is what a dispatch attempt reports when it finishes a message.
type Outcome struct {
	Recipients int
	Delivered  int
	Error      string
}

type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}
