package cursorstream

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/edaniels/cursorstream/codec"
)

// MessageType discriminates the wire envelope variants.
type MessageType uint8

// The four envelope variants. Every message carries exactly one.
const (
	MessageTypeData MessageType = iota + 1
	MessageTypeSignal
	MessageTypeHide
	MessageTypeHeartbeat
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeData:
		return "data"
	case MessageTypeSignal:
		return "signal"
	case MessageTypeHide:
		return "hide"
	case MessageTypeHeartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// A DataPayload carries a first-sighting (or forced-refresh) cursor
// image. An empty Payload is valid and tells the observer to resolve
// the content identifier to a locally available resource rather than
// expect bytes.
type DataPayload struct {
	ContentID ContentID
	Payload   []byte
	Format    codec.Format
	HotspotX  int32
	HotspotY  int32
	Width     int32
	Height    int32
}

// A SignalPayload references an already transmitted cursor image,
// carrying no bytes.
type SignalPayload struct {
	ContentID  ContentID
	FrameIndex uint32
}

// A Message is one decided cursor update. Exactly one variant is
// active, discriminated by Type; only Data and Signal carry a
// payload.
type Message struct {
	Type      MessageType
	Timestamp uint64
	Data      *DataPayload
	Signal    *SignalPayload
}

// NewHideMessage returns a message announcing the cursor went hidden.
func NewHideMessage() *Message {
	return &Message{Type: MessageTypeHide, Timestamp: timestampMS()}
}

// NewHeartbeatMessage returns a liveness message.
func NewHeartbeatMessage() *Message {
	return &Message{Type: MessageTypeHeartbeat, Timestamp: timestampMS()}
}

// NewSignalMessage returns a message referencing an already-known
// content identifier.
func NewSignalMessage(id ContentID, frameIndex uint32) *Message {
	return &Message{
		Type:      MessageTypeSignal,
		Timestamp: timestampMS(),
		Signal:    &SignalPayload{ContentID: id, FrameIndex: frameIndex},
	}
}

// NewDataMessage returns a message carrying a full cursor payload.
func NewDataMessage(payload DataPayload) *Message {
	return &Message{Type: MessageTypeData, Timestamp: timestampMS(), Data: &payload}
}

func timestampMS() uint64 {
	return uint64(time.Now().UnixMilli())
}

// envelope mirrors Message on the wire. One CBOR-encoded envelope is
// carried per binary frame.
type envelope struct {
	Type      uint8           `cbor:"type"`
	Timestamp uint64          `cbor:"ts"`
	Data      *dataEnvelope   `cbor:"data,omitempty"`
	Signal    *signalEnvelope `cbor:"signal,omitempty"`
}

type dataEnvelope struct {
	ContentID string `cbor:"content_id"`
	Bytes     []byte `cbor:"bytes"`
	Format    uint8  `cbor:"format"`
	HotspotX  int32  `cbor:"hotspot_x"`
	HotspotY  int32  `cbor:"hotspot_y"`
	Width     int32  `cbor:"width"`
	Height    int32  `cbor:"height"`
}

type signalEnvelope struct {
	ContentID  string `cbor:"content_id"`
	FrameIndex uint32 `cbor:"frame_index"`
}

// MarshalBinary encodes the message as a single envelope frame.
func (m *Message) MarshalBinary() ([]byte, error) {
	env := envelope{Type: uint8(m.Type), Timestamp: m.Timestamp}
	switch m.Type {
	case MessageTypeData:
		if m.Data == nil {
			return nil, errors.New("data message missing payload")
		}
		env.Data = &dataEnvelope{
			ContentID: string(m.Data.ContentID),
			Bytes:     m.Data.Payload,
			Format:    uint8(m.Data.Format),
			HotspotX:  m.Data.HotspotX,
			HotspotY:  m.Data.HotspotY,
			Width:     m.Data.Width,
			Height:    m.Data.Height,
		}
	case MessageTypeSignal:
		if m.Signal == nil {
			return nil, errors.New("signal message missing payload")
		}
		env.Signal = &signalEnvelope{
			ContentID:  string(m.Signal.ContentID),
			FrameIndex: m.Signal.FrameIndex,
		}
	case MessageTypeHide, MessageTypeHeartbeat:
	default:
		return nil, errors.Errorf("unknown message type %d", m.Type)
	}
	return cbor.Marshal(&env)
}

// UnmarshalBinaryMessage decodes a single envelope frame.
func UnmarshalBinaryMessage(frame []byte) (*Message, error) {
	var env envelope
	if err := cbor.Unmarshal(frame, &env); err != nil {
		return nil, errors.Wrap(err, "decoding envelope")
	}
	msg := &Message{Type: MessageType(env.Type), Timestamp: env.Timestamp}
	switch msg.Type {
	case MessageTypeData:
		if env.Data == nil {
			return nil, errors.New("data envelope missing payload")
		}
		msg.Data = &DataPayload{
			ContentID: ContentID(env.Data.ContentID),
			Payload:   env.Data.Bytes,
			Format:    codec.Format(env.Data.Format),
			HotspotX:  env.Data.HotspotX,
			HotspotY:  env.Data.HotspotY,
			Width:     env.Data.Width,
			Height:    env.Data.Height,
		}
	case MessageTypeSignal:
		if env.Signal == nil {
			return nil, errors.New("signal envelope missing payload")
		}
		msg.Signal = &SignalPayload{
			ContentID:  ContentID(env.Signal.ContentID),
			FrameIndex: env.Signal.FrameIndex,
		}
	case MessageTypeHide, MessageTypeHeartbeat:
	default:
		return nil, errors.Errorf("unknown message type %d", env.Type)
	}
	return msg, nil
}
