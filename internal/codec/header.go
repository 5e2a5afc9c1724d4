package codec

import "fmt"

// CurrentVersion is the only version this codec accepts on decode (spec
// 4.A: "version MUST be accepted when equal to the current version, 0x00;
// unknown -> hard fail").
const CurrentVersion uint8 = 0x00

// HeaderSize is the fixed 2-byte {version, message_type} header every
// message begins with.
const HeaderSize = 2

// MessageType is the closed set of OOB message kinds (spec 4.A).
type MessageType uint8

const (
	MessageCapabilityRequest MessageType = iota
	MessageCapabilityResponse
	MessageSetConfiguration
	MessageSetConfigurationResponse
	MessageStartRanging
	MessageStartRangingResponse
	MessageStopRanging
	MessageStopRangingResponse

	messageTypeCount
)

var messageTypeNames = [...]string{
	"CapabilityRequest", "CapabilityResponse", "SetConfiguration",
	"SetConfigurationResponse", "StartRanging", "StartRangingResponse",
	"StopRanging", "StopRangingResponse",
}

func (m MessageType) String() string {
	if int(m) < len(messageTypeNames) {
		return messageTypeNames[m]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(m))
}

func (m MessageType) valid() bool {
	return m < messageTypeCount
}

// Header is the 2-byte envelope every message shares.
type Header struct {
	Version     uint8
	MessageType MessageType
}

// PeekHeader decodes just the header from buf, validating version and
// message type, without consuming or validating the body. Callers use this
// to dispatch to the right per-message Unmarshal function.
func PeekHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("peek header: %w", ErrTruncated)
	}
	version := buf[0]
	if version != CurrentVersion {
		return Header{}, fmt.Errorf("peek header: version %d: %w", version, ErrUnknownVersion)
	}
	mt := MessageType(buf[1])
	if !mt.valid() {
		return Header{}, fmt.Errorf("peek header: type %d: %w", buf[1], ErrUnknownMessageType)
	}
	return Header{Version: version, MessageType: mt}, nil
}

func putHeader(buf []byte, mt MessageType) {
	buf[0] = CurrentVersion
	buf[1] = uint8(mt)
}
