package onebot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bitly/go-simplejson"

	"github.com/keshon/warden/internal/domain"
)

// Segment is one element of a OneBot message array.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func textSegment(text string) Segment {
	return Segment{Type: "text", Data: map[string]any{"text": text}}
}

func replySegment(messageID int64) Segment {
	return Segment{Type: "reply", Data: map[string]any{"id": fmt.Sprint(messageID)}}
}

func atSegment(userID int64) Segment {
	return Segment{Type: "at", Data: map[string]any{"qq": fmt.Sprint(userID)}}
}

type sender struct {
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Role     string `json:"role"`
}

type messageEvent struct {
	Time        int64           `json:"time"`
	SelfID      int64           `json:"self_id"`
	MessageType string          `json:"message_type"`
	MessageID   int64           `json:"message_id"`
	GroupID     int64           `json:"group_id"`
	UserID      int64           `json:"user_id"`
	RawMessage  string          `json:"raw_message"`
	Message     json.RawMessage `json:"message"`
	Sender      sender          `json:"sender"`
}

type request struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
	Echo   string `json:"echo"`
}

type response struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
}

// frame is the sniffed header of an inbound websocket frame.
type frame struct {
	echo     string
	hasEcho  bool
	postType string
	metaType string
	selfID   int64
}

func sniff(data []byte) (frame, error) {
	js, err := simplejson.NewJson(data)
	if err != nil {
		return frame{}, fmt.Errorf("onebot: decode frame: %w", err)
	}
	var f frame
	if echo, ok := js.CheckGet("echo"); ok {
		f.hasEcho = true
		f.echo = echoString(echo)
	}
	f.postType = js.Get("post_type").MustString()
	f.metaType = js.Get("meta_event_type").MustString()
	f.selfID = js.Get("self_id").MustInt64()
	return f, nil
}

// echoString accepts string and numeric echoes; some implementations
// round-trip the field with its JSON type changed.
func echoString(js *simplejson.Json) string {
	if s, err := js.String(); err == nil {
		return s
	}
	if n, err := js.Int64(); err == nil {
		return fmt.Sprint(n)
	}
	return ""
}

// decodeMessage turns a message event into a domain message. It reports
// false for events the engine has no use for.
func decodeMessage(data []byte) (domain.Message, bool, error) {
	var ev messageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.Message{}, false, fmt.Errorf("onebot: decode message event: %w", err)
	}
	if ev.SelfID != 0 && ev.UserID == ev.SelfID {
		return domain.Message{}, false, nil
	}

	msg := domain.Message{
		ID:         ev.MessageID,
		GroupID:    ev.GroupID,
		SenderID:   ev.UserID,
		SenderName: ev.Sender.Card,
		Text:       plainText(ev),
		Time:       time.Unix(ev.Time, 0),
	}
	if msg.SenderName == "" {
		msg.SenderName = ev.Sender.Nickname
	}
	switch ev.MessageType {
	case "group":
		msg.Kind = domain.ScopeGroup
	case "private":
		msg.Kind = domain.ScopePrivate
		msg.GroupID = 0
	default:
		return domain.Message{}, false, nil
	}
	return msg, true, nil
}

// plainText joins the text segments of an array message. String messages
// fall back to raw_message.
func plainText(ev messageEvent) string {
	js, err := simplejson.NewJson(ev.Message)
	if err != nil {
		return ev.RawMessage
	}
	if s, err := js.String(); err == nil {
		return s
	}
	segs, err := js.Array()
	if err != nil {
		return ev.RawMessage
	}
	var b strings.Builder
	for i := range segs {
		seg := js.GetIndex(i)
		if seg.Get("type").MustString() == "text" {
			b.WriteString(seg.Get("data").Get("text").MustString())
		}
	}
	return b.String()
}
