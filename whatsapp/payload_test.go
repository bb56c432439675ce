package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInboundConversation(t *testing.T) {
	body := []byte(`{"data":{"key":{"remoteJid":"5511999@s.whatsapp.net"},"message":{"conversation":"hi"}}}`)

	phone, text, err := ParseInbound(body)
	require.NoError(t, err)
	require.Equal(t, "5511999", phone)
	require.Equal(t, "hi", text)
}

func TestParseInboundExtendedTextWins(t *testing.T) {
	body := []byte(`{"data":{"key":{"remoteJid":"123@g.us"},"message":{"extendedTextMessage":{"text":"quoted reply"},"conversation":"ignored"}}}`)

	phone, text, err := ParseInbound(body)
	require.NoError(t, err)
	require.Equal(t, "123", phone)
	require.Equal(t, "quoted reply", text)
}

func TestParseInboundTextMessageFallback(t *testing.T) {
	body := []byte(`{"data":{"key":{"remoteJid":"777@s.whatsapp.net"},"message":{"textMessage":{"text":"plain"}}}}`)

	_, text, err := ParseInbound(body)
	require.NoError(t, err)
	require.Equal(t, "plain", text)
}

func TestParseInboundRejectsJidWithoutAt(t *testing.T) {
	body := []byte(`{"data":{"key":{"remoteJid":"5511999"},"message":{"conversation":"hi"}}}`)

	_, _, err := ParseInbound(body)
	require.ErrorIs(t, err, ErrInvalidSender)
}

func TestParseInboundRejectsMissingText(t *testing.T) {
	body := []byte(`{"data":{"key":{"remoteJid":"5511999@s.whatsapp.net"},"message":{}}}`)

	_, _, err := ParseInbound(body)
	require.ErrorIs(t, err, ErrNoText)
}

func TestParseInboundRejectsBadJSON(t *testing.T) {
	_, _, err := ParseInbound([]byte("{not json"))
	require.Error(t, err)
}
