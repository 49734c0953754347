package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var errMalformed = errors.New("malformed confirmation event")

// ConfirmationEvent is the message published on the confirmation queue.
type ConfirmationEvent struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	QueuedAt string `json:"queued_at"`
}

func encodeEvent(address, token string, now time.Time) ([]byte, error) {
	return json.Marshal(ConfirmationEvent{
		Email:    address,
		Token:    token,
		QueuedAt: now.UTC().Format(time.RFC3339),
	})
}

func decodeEvent(body []byte) (ConfirmationEvent, error) {
	var ev ConfirmationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ev.Email == "" || ev.Token == "" {
		return ev, fmt.Errorf("%w: missing email or token", errMalformed)
	}
	return ev, nil
}
