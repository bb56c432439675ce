package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSender = errors.New("invalid sender jid")
	ErrNoText        = errors.New("payload carries no text message")
)

// InboundPayload mirrors the Evolution webhook body. Only one of the three
// message shapes is populated per event.
type InboundPayload struct {
	Data struct {
		Key struct {
			RemoteJid string `json:"remoteJid"`
		} `json:"key"`
		Message struct {
			ExtendedTextMessage *struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
			Conversation string `json:"conversation"`
			TextMessage  *struct {
				Text string `json:"text"`
			} `json:"textMessage"`
		} `json:"message"`
	} `json:"data"`
}

// ParseInbound extracts the sender phone number and message text from a raw
// webhook body. The phone is the part of remoteJid before the "@".
func ParseInbound(body []byte) (phone, text string, err error) {
	var payload InboundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", fmt.Errorf("decode webhook payload: %w", err)
	}

	jid := payload.Data.Key.RemoteJid
	at := strings.Index(jid, "@")
	if at <= 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSender, jid)
	}
	phone = jid[:at]

	msg := payload.Data.Message
	switch {
	case msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != "":
		text = msg.ExtendedTextMessage.Text
	case msg.Conversation != "":
		text = msg.Conversation
	case msg.TextMessage != nil && msg.TextMessage.Text != "":
		text = msg.TextMessage.Text
	default:
		return "", "", ErrNoText
	}

	return phone, text, nil
}
