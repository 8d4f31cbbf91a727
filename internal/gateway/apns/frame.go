package apns

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Binary-interface frame layout (command 2): each notification is a frame
// item carrying five TLV fields.
const (
	frameCommand = 2

	itemDeviceToken = 1
	itemPayload     = 2
	itemIdentifier  = 3
	itemExpiry      = 4
	itemPriority    = 5
)

// Frame is the outgoing envelope for one batch of notifications, ready for
// submission to the gateway connection.
type Frame struct {
	items []frameItem
}

type frameItem struct {
	token      []byte
	payload    []byte
	identifier uint32
	expiry     uint32
	priority   uint8
}

// AddItem appends one notification. The token is the platform-native hex
// form; expiry is a unix timestamp after which the gateway discards the
// notification.
func (f *Frame) AddItem(tokenHex string, payload []byte, identifier uint32, expiry uint32, priority uint8) error {
	token, err := hex.DecodeString(tokenHex)
	if err != nil {
		return fmt.Errorf("decode device token: %w", err)
	}
	f.items = append(f.items, frameItem{
		token:      token,
		payload:    payload,
		identifier: identifier,
		expiry:     expiry,
		priority:   priority,
	})
	return nil
}

// Len returns the number of notifications in the frame.
func (f *Frame) Len() int {
	return len(f.items)
}

// WireFormat encodes the frame for the wire.
func (f *Frame) WireFormat() []byte {
	var body []byte
	for _, item := range f.items {
		body = append(body, encodeField(itemDeviceToken, item.token)...)
		body = append(body, encodeField(itemPayload, item.payload)...)
		body = append(body, encodeField(itemIdentifier, binary.BigEndian.AppendUint32(nil, item.identifier))...)
		body = append(body, encodeField(itemExpiry, binary.BigEndian.AppendUint32(nil, item.expiry))...)
		body = append(body, encodeField(itemPriority, []byte{item.priority})...)
	}

	out := make([]byte, 0, 5+len(body))
	out = append(out, frameCommand)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func encodeField(id uint8, data []byte) []byte {
	out := make([]byte, 0, 3+len(data))
	out = append(out, id)
	out = binary.BigEndian.AppendUint16(out, uint16(len(data)))
	return append(out, data...)
}
