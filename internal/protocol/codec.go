package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrProtocolDecode = errors.New("protocol decode")

const (
	tagField    = "tag"
	senderField = "senderId"
)

// Decode parses one complete client frame. Known system tags decode into
// their own types; every other tag becomes a Custom message whose payload
// is the frame without its sender id.
func Decode(data []byte) (Incoming, error) {
	data = bytes.TrimRight(data, "\x00")

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolDecode, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: frame is not an object", ErrProtocolDecode)
	}

	rawTag, ok := fields[tagField]
	if !ok {
		return nil, fmt.Errorf("%w: missing tag", ErrProtocolDecode)
	}
	var tag string
	if err := json.Unmarshal(rawTag, &tag); err != nil || tag == "" {
		return nil, fmt.Errorf("%w: tag must be a non-empty string", ErrProtocolDecode)
	}

	sender, err := decodeSender(fields[senderField])
	if err != nil {
		return nil, err
	}

	switch tag {
	case TagClientReady:
		return ClientReady{SenderID: sender}, nil

	case TagRTC:
		var m RTCSignal
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: rtc: %v", ErrProtocolDecode, err)
		}
		return m, nil

	default:
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrProtocolDecode, tag, err)
		}
		delete(payload, senderField)
		return Custom{ID: tag, SenderID: sender, Data: payload}, nil
	}
}

func decodeSender(raw json.RawMessage) (uuid.UUID, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return uuid.Nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return uuid.Nil, fmt.Errorf("%w: senderId must be a string", ErrProtocolDecode)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: senderId: %v", ErrProtocolDecode, err)
	}
	return id, nil
}

// Encode serializes an outgoing message with its tag.
func Encode(m Outgoing) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Tag(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Tag(), err)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	tag, err := json.Marshal(m.Tag())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Tag(), err)
	}
	fields[tagField] = tag
	return json.Marshal(fields)
}
