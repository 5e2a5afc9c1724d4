package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/go-ranging/goranging/internal/ranging"
)

// Each message after the 2-byte header is {bitmap fields} followed by zero
// or more length-prefixed tech blocks, per spec 4.A / 6.4. Bitmap fields are
// always 2-byte little-endian TechnologyBitmap values; any bit set outside
// the four known technologies is a hard decode failure.

func decodeBitmap(buf []byte) (ranging.TechnologyBitmap, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("decode bitmap: %w", ErrTruncated)
	}
	b := ranging.TechnologyBitmap(binary.LittleEndian.Uint16(buf[0:2]))
	if b.HasUnknownBits() {
		return 0, fmt.Errorf("decode bitmap: %w", ErrUnknownBitSet)
	}
	return b, nil
}

func putBitmap(buf []byte, b ranging.TechnologyBitmap) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(b))
}

// CapabilityRequest asks a peer which technologies it supports, restricted
// to Requested.
type CapabilityRequest struct {
	Requested ranging.TechnologyBitmap
}

func MarshalCapabilityRequest(m CapabilityRequest) ([]byte, error) {
	buf := make([]byte, HeaderSize+2)
	putHeader(buf, MessageCapabilityRequest)
	putBitmap(buf[HeaderSize:], m.Requested)
	return buf, nil
}

func UnmarshalCapabilityRequest(body []byte) (CapabilityRequest, error) {
	requested, err := decodeBitmap(body)
	if err != nil {
		return CapabilityRequest{}, err
	}
	return CapabilityRequest{Requested: requested}, nil
}

// CapabilityResponse reports supported technologies, the responder's
// priority order among them, and one TechCapability block per supported
// technology.
type CapabilityResponse struct {
	Supported     ranging.TechnologyBitmap
	PriorityOrder ranging.TechnologyBitmap
	Capabilities  []ranging.TechCapability
}

func MarshalCapabilityResponse(m CapabilityResponse) ([]byte, error) {
	buf := make([]byte, HeaderSize+4, HeaderSize+4+len(m.Capabilities)*capabilityUWBSize)
	putHeader(buf, MessageCapabilityResponse)
	putBitmap(buf[HeaderSize:], m.Supported)
	putBitmap(buf[HeaderSize+2:], m.PriorityOrder)

	var block [blockHeaderSize + capabilityUWBSize]byte
	for _, c := range m.Capabilities {
		n, err := EncodeCapabilityBlock(block[:], c)
		if err != nil {
			return nil, fmt.Errorf("marshal capability response: %w", err)
		}
		buf = append(buf, block[:n]...)
	}
	return buf, nil
}

func UnmarshalCapabilityResponse(body []byte) (CapabilityResponse, error) {
	if len(body) < 4 {
		return CapabilityResponse{}, fmt.Errorf("unmarshal capability response: %w", ErrTruncated)
	}
	supported, err := decodeBitmap(body[0:2])
	if err != nil {
		return CapabilityResponse{}, err
	}
	priority, err := decodeBitmap(body[2:4])
	if err != nil {
		return CapabilityResponse{}, err
	}
	blocks, err := decodeBlockList(body[4:])
	if err != nil {
		return CapabilityResponse{}, err
	}
	caps := make([]ranging.TechCapability, 0, len(blocks))
	for _, b := range blocks {
		c, ok, err := decodeCapabilityBlock(b)
		if err != nil {
			return CapabilityResponse{}, err
		}
		if ok {
			caps = append(caps, c)
		}
	}
	return CapabilityResponse{Supported: supported, PriorityOrder: priority, Capabilities: caps}, nil
}

// SetConfiguration carries one TechConfig block per technology in
// TechsSet, plus which of those to start ranging on immediately
// (StartImmediately is a subset of TechsSet).
type SetConfiguration struct {
	TechsSet         ranging.TechnologyBitmap
	StartImmediately ranging.TechnologyBitmap
	Params           map[ranging.TechnologyTag]ranging.RawRangingParams
}

func MarshalSetConfiguration(m SetConfiguration) ([]byte, error) {
	buf := make([]byte, HeaderSize+4)
	putHeader(buf, MessageSetConfiguration)
	putBitmap(buf[HeaderSize:], m.TechsSet)
	putBitmap(buf[HeaderSize+2:], m.StartImmediately)

	var block [blockHeaderSize + configUWBSize]byte
	for _, tech := range m.TechsSet.Technologies() {
		params, ok := m.Params[tech]
		if !ok {
			return nil, fmt.Errorf("marshal set configuration: missing params for %s", tech)
		}
		n, err := EncodeConfigBlock(block[:], tech, params)
		if err != nil {
			return nil, fmt.Errorf("marshal set configuration: %w", err)
		}
		buf = append(buf, block[:n]...)
	}
	return buf, nil
}

func UnmarshalSetConfiguration(body []byte) (SetConfiguration, error) {
	if len(body) < 4 {
		return SetConfiguration{}, fmt.Errorf("unmarshal set configuration: %w", ErrTruncated)
	}
	techsSet, err := decodeBitmap(body[0:2])
	if err != nil {
		return SetConfiguration{}, err
	}
	startNow, err := decodeBitmap(body[2:4])
	if err != nil {
		return SetConfiguration{}, err
	}
	blocks, err := decodeBlockList(body[4:])
	if err != nil {
		return SetConfiguration{}, err
	}
	params := make(map[ranging.TechnologyTag]ranging.RawRangingParams, len(blocks))
	for _, b := range blocks {
		tech, p, ok, err := decodeConfigBlock(b)
		if err != nil {
			return SetConfiguration{}, err
		}
		if ok {
			params[tech] = p
		}
	}
	return SetConfiguration{TechsSet: techsSet, StartImmediately: startNow, Params: params}, nil
}

// SetConfigurationResponse reports which technologies were accepted.
type SetConfigurationResponse struct {
	Successful ranging.TechnologyBitmap
}

func MarshalSetConfigurationResponse(m SetConfigurationResponse) ([]byte, error) {
	buf := make([]byte, HeaderSize+2)
	putHeader(buf, MessageSetConfigurationResponse)
	putBitmap(buf[HeaderSize:], m.Successful)
	return buf, nil
}

func UnmarshalSetConfigurationResponse(body []byte) (SetConfigurationResponse, error) {
	successful, err := decodeBitmap(body)
	if err != nil {
		return SetConfigurationResponse{}, err
	}
	return SetConfigurationResponse{Successful: successful}, nil
}

// StartRanging requests the peer begin ranging on TechsToStart.
type StartRanging struct {
	TechsToStart ranging.TechnologyBitmap
}

func MarshalStartRanging(m StartRanging) ([]byte, error) {
	buf := make([]byte, HeaderSize+2)
	putHeader(buf, MessageStartRanging)
	putBitmap(buf[HeaderSize:], m.TechsToStart)
	return buf, nil
}

func UnmarshalStartRanging(body []byte) (StartRanging, error) {
	techs, err := decodeBitmap(body)
	if err != nil {
		return StartRanging{}, err
	}
	return StartRanging{TechsToStart: techs}, nil
}

// StartRangingResponse reports which technologies actually started.
type StartRangingResponse struct {
	Successful ranging.TechnologyBitmap
}

func MarshalStartRangingResponse(m StartRangingResponse) ([]byte, error) {
	buf := make([]byte, HeaderSize+2)
	putHeader(buf, MessageStartRangingResponse)
	putBitmap(buf[HeaderSize:], m.Successful)
	return buf, nil
}

func UnmarshalStartRangingResponse(body []byte) (StartRangingResponse, error) {
	successful, err := decodeBitmap(body)
	if err != nil {
		return StartRangingResponse{}, err
	}
	return StartRangingResponse{Successful: successful}, nil
}

// StopRanging requests the peer stop ranging on TechsToStop.
type StopRanging struct {
	TechsToStop ranging.TechnologyBitmap
}

func MarshalStopRanging(m StopRanging) ([]byte, error) {
	buf := make([]byte, HeaderSize+2)
	putHeader(buf, MessageStopRanging)
	putBitmap(buf[HeaderSize:], m.TechsToStop)
	return buf, nil
}

func UnmarshalStopRanging(body []byte) (StopRanging, error) {
	techs, err := decodeBitmap(body)
	if err != nil {
		return StopRanging{}, err
	}
	return StopRanging{TechsToStop: techs}, nil
}

// StopRangingResponse reports which technologies actually stopped.
type StopRangingResponse struct {
	Successful ranging.TechnologyBitmap
}

func MarshalStopRangingResponse(m StopRangingResponse) ([]byte, error) {
	buf := make([]byte, HeaderSize+2)
	putHeader(buf, MessageStopRangingResponse)
	putBitmap(buf[HeaderSize:], m.Successful)
	return buf, nil
}

func UnmarshalStopRangingResponse(body []byte) (StopRangingResponse, error) {
	successful, err := decodeBitmap(body)
	if err != nil {
		return StopRangingResponse{}, err
	}
	return StopRangingResponse{Successful: successful}, nil
}

// Decode dispatches on the message header and returns the decoded payload
// as one of the message-family types above.
func Decode(buf []byte) (Header, any, error) {
	hdr, err := PeekHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}
	body := buf[HeaderSize:]

	var payload any
	switch hdr.MessageType {
	case MessageCapabilityRequest:
		payload, err = UnmarshalCapabilityRequest(body)
	case MessageCapabilityResponse:
		payload, err = UnmarshalCapabilityResponse(body)
	case MessageSetConfiguration:
		payload, err = UnmarshalSetConfiguration(body)
	case MessageSetConfigurationResponse:
		payload, err = UnmarshalSetConfigurationResponse(body)
	case MessageStartRanging:
		payload, err = UnmarshalStartRanging(body)
	case MessageStartRangingResponse:
		payload, err = UnmarshalStartRangingResponse(body)
	case MessageStopRanging:
		payload, err = UnmarshalStopRanging(body)
	case MessageStopRangingResponse:
		payload, err = UnmarshalStopRangingResponse(body)
	default:
		return Header{}, nil, fmt.Errorf("decode: %w", ErrUnknownMessageType)
	}
	if err != nil {
		return Header{}, nil, err
	}
	return hdr, payload, nil
}
