package cache

import (
	"context"
	"time"
)

type Receipt struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

// DeliveryCache keeps per-recipient delivery receipts of scheduled messages.
type DeliveryCache interface {
	StoreDelivered(ctx context.Context, messageID, address, remoteMessageID string, sentAt time.Time) error
	Receipts(ctx context.Context, messageID string) (map[string]Receipt, error)
}
