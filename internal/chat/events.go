package chat

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Signature verification errors.
var (
	ErrBadSignature   = errors.New("request signature mismatch")
	ErrStaleTimestamp = errors.New("request timestamp too old")
)

// signatureTolerance bounds replay of captured requests.
const signatureTolerance = 5 * time.Minute

// VerifySignature checks the platform's v0 HMAC request signature.
func VerifySignature(signingSecret, timestamp, signature string, body []byte) error {
	return verifySignatureAt(signingSecret, timestamp, signature, body, time.Now())
}

func verifySignatureAt(signingSecret, timestamp, signature string, body []byte, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing request timestamp: %w", err)
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// MessageEvent is an inbound mention or direct message addressed to the
// agent.
type MessageEvent struct {
	Channel  string
	User     string
	Text     string
	TS       string
	ThreadTS string // equals TS when the message starts a thread
}

// ReactionEvent is an emoji reaction added to some prior message.
type ReactionEvent struct {
	Reaction string
	User     string
	Channel  string
	ItemTS   string // timestamp of the message reacted to
}

// Envelope is one parsed webhook delivery.
type Envelope struct {
	// Challenge is non-empty for url_verification handshakes; echo it
	// back and do nothing else.
	Challenge string
	Message   *MessageEvent
	Reaction  *ReactionEvent
}

type rawEnvelope struct {
	Type      string   `json:"type"`
	Challenge string   `json:"challenge"`
	Event     rawEvent `json:"event"`
}

type rawEvent struct {
	Type     string  `json:"type"`
	Channel  string  `json:"channel"`
	User     string  `json:"user"`
	Text     string  `json:"text"`
	TS       string  `json:"ts"`
	ThreadTS string  `json:"thread_ts"`
	Reaction string  `json:"reaction"`
	Item     rawItem `json:"item"`
	BotID    string  `json:"bot_id"`
}

type rawItem struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// ParseEvent decodes one webhook body. Deliveries the agent does not act
// on (bot echoes, unknown event types) come back as an empty Envelope.
func ParseEvent(body []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing event body: %w", err)
	}

	switch raw.Type {
	case "url_verification":
		return &Envelope{Challenge: raw.Challenge}, nil
	case "event_callback":
		// fall through to the inner event
	default:
		return &Envelope{}, nil
	}

	ev := raw.Event
	switch ev.Type {
	case "app_mention", "message":
		if ev.BotID != "" {
			// the agent's own replies echo back as message events
			return &Envelope{}, nil
		}
		threadTS := ev.ThreadTS
		if threadTS == "" {
			threadTS = ev.TS
		}
		return &Envelope{Message: &MessageEvent{
			Channel:  ev.Channel,
			User:     ev.User,
			Text:     ev.Text,
			TS:       ev.TS,
			ThreadTS: threadTS,
		}}, nil

	case "reaction_added":
		return &Envelope{Reaction: &ReactionEvent{
			Reaction: ev.Reaction,
			User:     ev.User,
			Channel:  ev.Item.Channel,
			ItemTS:   ev.Item.TS,
		}}, nil
	}

	return &Envelope{}, nil
}
