package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/Skotchmaster/marketplace/pkg/idpclient"
)

const (
	EventUserCreated = "user.created"
	EventUserDeleted = "user.deleted"
)

var ErrInvalidSignature = errors.New("identity: invalid webhook signature")

type Event struct {
	Type string         `json:"type"`
	Data idpclient.User `json:"data"`
}

// Email is the primary address of the user carried by the event.
func (e *Event) Email() string {
	return e.Data.PrimaryEmail()
}

type Verifier struct {
	wh *svix.Webhook
}

func NewVerifier(secret string) (*Verifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("identity: webhook secret: %w", err)
	}
	return &Verifier{wh: wh}, nil
}

// Parse checks the signature headers against the raw body before decoding it.
func (v *Verifier) Parse(payload []byte, headers http.Header) (*Event, error) {
	if err := v.wh.Verify(payload, headers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("identity: decode event: %w", err)
	}
	if ev.Type == "" || ev.Data.ID == "" {
		return nil, errors.New("identity: event without type or user id")
	}
	return &ev, nil
}
