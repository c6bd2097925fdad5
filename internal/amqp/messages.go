package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// MoveMessage points the worker at one stored move request. The request row
// holds everything else, so a redelivered message is harmless.
type MoveMessage struct {
	RequestID  string    `json:"request_id"`
	WorkItemID int       `json:"work_item_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewMoveMessage(requestID string, workItemID int) MoveMessage {
	return MoveMessage{
		RequestID:  requestID,
		WorkItemID: workItemID,
		Timestamp:  time.Now().UTC(),
	}
}

func (m MoveMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MoveMessageFromJSON rejects bodies that do not name a request.
func MoveMessageFromJSON(data []byte) (MoveMessage, error) {
	var msg MoveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return MoveMessage{}, err
	}
	if msg.RequestID == "" {
		return MoveMessage{}, fmt.Errorf("move message without request_id")
	}
	return msg, nil
}
