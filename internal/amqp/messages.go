package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// PurchaseSyncMessage announces a purchase that was saved to the local store
// while the remote API was unavailable. The worker loads the purchase itself.
type PurchaseSyncMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPurchaseSyncMessage(id string) *PurchaseSyncMessage {
	return &PurchaseSyncMessage{
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

func (m *PurchaseSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PurchaseSyncMessageFromJSON(data []byte) (*PurchaseSyncMessage, error) {
	var msg PurchaseSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("sync message without purchase id")
	}
	return &msg, nil
}
