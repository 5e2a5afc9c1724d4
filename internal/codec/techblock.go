package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/go-ranging/goranging/internal/ranging"
)

// Each TechCapability/TechConfig block is itself length-prefixed:
// {tech_id:u8, block_size:u8, payload[block_size-2]}. Parsers MUST advance
// exactly block_size bytes regardless of whether they understand tech_id;
// unknown tech_ids inside a block list are ignored (spec 4.A).

const blockHeaderSize = 2 // tech_id + block_size

// encodeBlock writes {tech_id, block_size, payload} into buf, returning
// the number of bytes written.
func encodeBlock(buf []byte, techID uint8, payload []byte) (int, error) {
	total := blockHeaderSize + len(payload)
	if total > 0xFF {
		return 0, fmt.Errorf("encode block tech %d: payload too large: %w", techID, ErrBufTooSmall)
	}
	if len(buf) < total {
		return 0, fmt.Errorf("encode block tech %d: %w", techID, ErrBufTooSmall)
	}
	buf[0] = techID
	buf[1] = uint8(total) //nolint:gosec // bounded by the 0xFF check above
	copy(buf[blockHeaderSize:total], payload)
	return total, nil
}

// decodedBlock is one parsed {tech_id, block_size, payload} entry.
type decodedBlock struct {
	techID   uint8
	payload  []byte
	consumed int
}

// decodeBlock reads one block from the front of buf. It always advances
// exactly block_size bytes, even for a tech_id the caller does not
// recognize (spec 4.A).
func decodeBlock(buf []byte) (decodedBlock, error) {
	if len(buf) < blockHeaderSize {
		return decodedBlock{}, fmt.Errorf("decode block: %w", ErrTruncated)
	}
	techID := buf[0]
	blockSize := int(buf[1])
	if blockSize < blockHeaderSize {
		return decodedBlock{}, fmt.Errorf("decode block tech %d: size %d: %w", techID, blockSize, ErrBlockTooSmall)
	}
	if len(buf) < blockSize {
		return decodedBlock{}, fmt.Errorf("decode block tech %d: size %d exceeds remaining %d: %w",
			techID, blockSize, len(buf), ErrBlockSizeMismatch)
	}
	return decodedBlock{
		techID:   techID,
		payload:  buf[blockHeaderSize:blockSize],
		consumed: blockSize,
	}, nil
}

// decodeBlockList decodes consecutive blocks from buf until it is
// exhausted, ignoring unrecognized tech_ids but still advancing over them
// exactly as their declared block_size requires.
func decodeBlockList(buf []byte) ([]decodedBlock, error) {
	var blocks []decodedBlock
	for len(buf) > 0 {
		b, err := decodeBlock(buf)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
		buf = buf[b.consumed:]
	}
	return blocks, nil
}

// --- Capability payloads --------------------------------------------------
//
// Capability block layouts are this codec's own design (spec 4.A specifies
// the logical fields but not a byte layout for capability, only for
// config); they are self-describing via block_size like every other block
// and round-trip losslessly.

const capabilityUWBSize = 18 // address2 + channels4 + preambles4 + configIDs4 + minInterval2 + minSlot1 + roles1

func encodeUWBCapability(buf []byte, c ranging.TechCapability) (int, error) {
	if len(buf) < capabilityUWBSize {
		return 0, fmt.Errorf("encode uwb capability: %w", ErrBufTooSmall)
	}
	binary.LittleEndian.PutUint16(buf[0:2], c.Address)
	binary.LittleEndian.PutUint32(buf[2:6], c.SupportedChannels)
	binary.LittleEndian.PutUint32(buf[6:10], c.SupportedPreambles)
	binary.LittleEndian.PutUint32(buf[10:14], c.SupportedConfigIDs)
	binary.LittleEndian.PutUint16(buf[14:16], c.MinRangingIntervalMs)
	buf[16] = c.MinSlotDurationMs
	buf[17] = c.SupportedRoles
	return capabilityUWBSize, nil
}

func decodeUWBCapability(payload []byte) (ranging.TechCapability, error) {
	if len(payload) < capabilityUWBSize {
		return ranging.TechCapability{}, fmt.Errorf("decode uwb capability: %w", ErrTruncated)
	}
	return ranging.TechCapability{
		Technology:           ranging.TechUWB,
		Address:              binary.LittleEndian.Uint16(payload[0:2]),
		SupportedChannels:    binary.LittleEndian.Uint32(payload[2:6]),
		SupportedPreambles:   binary.LittleEndian.Uint32(payload[6:10]),
		SupportedConfigIDs:   binary.LittleEndian.Uint32(payload[10:14]),
		MinRangingIntervalMs: binary.LittleEndian.Uint16(payload[14:16]),
		MinSlotDurationMs:    payload[16],
		SupportedRoles:       payload[17],
	}, nil
}

const capabilityCSSize = 7

func encodeCSCapability(buf []byte, c ranging.TechCapability) (int, error) {
	if len(buf) < capabilityCSSize {
		return 0, fmt.Errorf("encode cs capability: %w", ErrBufTooSmall)
	}
	copy(buf[0:6], c.BTAddress[:])
	buf[6] = c.SupportedSecurityLevels
	return capabilityCSSize, nil
}

func decodeCSCapability(payload []byte) (ranging.TechCapability, error) {
	if len(payload) < capabilityCSSize {
		return ranging.TechCapability{}, fmt.Errorf("decode cs capability: %w", ErrTruncated)
	}
	var addr ranging.BTAddress
	copy(addr[:], payload[0:6])
	return ranging.TechCapability{
		Technology:              ranging.TechCS,
		BTAddress:                addr,
		SupportedSecurityLevels: payload[6],
	}, nil
}

const capabilityRTTSize = 3

func encodeRTTCapability(buf []byte, c ranging.TechCapability) (int, error) {
	if len(buf) < capabilityRTTSize {
		return 0, fmt.Errorf("encode rtt capability: %w", ErrBufTooSmall)
	}
	if c.SupportsPeriodic {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	binary.LittleEndian.PutUint16(buf[1:3], c.SupportedBandwidths)
	return capabilityRTTSize, nil
}

func decodeRTTCapability(payload []byte) (ranging.TechCapability, error) {
	if len(payload) < capabilityRTTSize {
		return ranging.TechCapability{}, fmt.Errorf("decode rtt capability: %w", ErrTruncated)
	}
	return ranging.TechCapability{
		Technology:          ranging.TechRTT,
		SupportsPeriodic:    payload[0] != 0,
		SupportedBandwidths: binary.LittleEndian.Uint16(payload[1:3]),
	}, nil
}

const capabilityRSSISize = 6

func encodeRSSICapability(buf []byte, c ranging.TechCapability) (int, error) {
	if len(buf) < capabilityRSSISize {
		return 0, fmt.Errorf("encode rssi capability: %w", ErrBufTooSmall)
	}
	copy(buf[0:6], c.BTAddress[:])
	return capabilityRSSISize, nil
}

func decodeRSSICapability(payload []byte) (ranging.TechCapability, error) {
	if len(payload) < capabilityRSSISize {
		return ranging.TechCapability{}, fmt.Errorf("decode rssi capability: %w", ErrTruncated)
	}
	var addr ranging.BTAddress
	copy(addr[:], payload[0:6])
	return ranging.TechCapability{Technology: ranging.TechRSSI, BTAddress: addr}, nil
}

// EncodeCapabilityBlock writes one TechCapability block (header + payload)
// for c's technology.
func EncodeCapabilityBlock(buf []byte, c ranging.TechCapability) (int, error) {
	var payload [capabilityUWBSize]byte // largest payload
	var n int
	var err error
	switch c.Technology {
	case ranging.TechUWB:
		n, err = encodeUWBCapability(payload[:], c)
	case ranging.TechCS:
		n, err = encodeCSCapability(payload[:], c)
	case ranging.TechRTT:
		n, err = encodeRTTCapability(payload[:], c)
	case ranging.TechRSSI:
		n, err = encodeRSSICapability(payload[:], c)
	default:
		return 0, fmt.Errorf("encode capability block: %w", ErrUnknownMessageType)
	}
	if err != nil {
		return 0, err
	}
	return encodeBlock(buf, uint8(c.Technology.BitIndex()), payload[:n])
}

// decodeCapabilityBlock decodes one TechCapability from a decodedBlock.
// Unknown tech_ids return ok=false with no error: the caller skips them
// per spec 4.A.
func decodeCapabilityBlock(b decodedBlock) (cap ranging.TechCapability, ok bool, err error) {
	tech, known := ranging.TechnologyFromBitIndex(uint(b.techID))
	if !known {
		return ranging.TechCapability{}, false, nil
	}
	switch tech {
	case ranging.TechUWB:
		cap, err = decodeUWBCapability(b.payload)
	case ranging.TechCS:
		cap, err = decodeCSCapability(b.payload)
	case ranging.TechRTT:
		cap, err = decodeRTTCapability(b.payload)
	case ranging.TechRSSI:
		cap, err = decodeRSSICapability(b.payload)
	}
	if err != nil {
		return ranging.TechCapability{}, false, err
	}
	return cap, true, nil
}

// --- Config payloads -------------------------------------------------------
//
// TechConfig layouts follow spec 4.A exactly: the UWB fixed layout (one
// address field -- the sender's own UWB address, announced so the peer
// knows where to range to), RSSI's 6-byte address, CS's
// address+security-level, RTT's name-length-prefixed record.

const configUWBSize = 2 + 4 + 1 + 1 + 1 + 2 + 1 + 1 + 32 + 2 + 1 + 1 // max, variable session key

// encodeUWBConfig writes p's LocalAddress as the wire "UWB address" field:
// each side announces its own address, which the receiver records as that
// peer's address.
func encodeUWBConfig(buf []byte, p ranging.UWBParams) (int, error) {
	k := len(p.SessionKey)
	if k != 8 && k != 16 && k != 32 {
		return 0, fmt.Errorf("encode uwb config: key len %d: %w", k, ErrInvalidSessionKeyLen)
	}
	if p.CountryCode[0] < 'A' || p.CountryCode[0] > 'Z' || p.CountryCode[1] < 'A' || p.CountryCode[1] > 'Z' {
		return 0, fmt.Errorf("encode uwb config: %w", ErrInvalidCountryCode)
	}

	size := 2 + 4 + 1 + 1 + 1 + 2 + 1 + 1 + k + 2 + 1 + 1
	if len(buf) < size {
		return 0, fmt.Errorf("encode uwb config: %w", ErrBufTooSmall)
	}

	off := 0
	binary.LittleEndian.PutUint16(buf[off:off+2], p.LocalAddress)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:off+4], p.SessionID)
	off += 4
	buf[off] = p.ConfigID
	off++
	buf[off] = p.Channel
	off++
	buf[off] = p.PreambleIndex
	off++
	binary.LittleEndian.PutUint16(buf[off:off+2], p.IntervalMs)
	off += 2
	buf[off] = p.SlotDurationMs
	off++
	buf[off] = uint8(k) //nolint:gosec // k is validated to be 8, 16, or 32 above
	off++
	copy(buf[off:off+k], p.SessionKey)
	off += k
	buf[off] = p.CountryCode[0]
	off++
	buf[off] = p.CountryCode[1]
	off++
	buf[off] = uint8(p.Role)
	off++
	buf[off] = uint8(p.DeviceMode)
	off++

	return off, nil
}

// decodeUWBConfig decodes the wire "UWB address" field into PeerAddress:
// from the receiving side's perspective, the address the sender announced
// is that peer's address, not the receiver's own. Callers must fill in
// LocalAddress separately before starting an adapter from the result.
func decodeUWBConfig(payload []byte) (ranging.UWBParams, error) {
	const minFixed = 2 + 4 + 1 + 1 + 1 + 2 + 1 + 1 // up to and including key-length byte
	if len(payload) < minFixed {
		return ranging.UWBParams{}, fmt.Errorf("decode uwb config: %w", ErrTruncated)
	}

	off := 0
	var p ranging.UWBParams
	p.PeerAddress = binary.LittleEndian.Uint16(payload[off : off+2])
	off += 2
	p.SessionID = binary.LittleEndian.Uint32(payload[off : off+4])
	off += 4
	p.ConfigID = payload[off]
	off++
	p.Channel = payload[off]
	off++
	p.PreambleIndex = payload[off]
	off++
	p.IntervalMs = binary.LittleEndian.Uint16(payload[off : off+2])
	off += 2
	p.SlotDurationMs = payload[off]
	off++
	k := int(payload[off])
	off++
	if k != 8 && k != 16 && k != 32 {
		return ranging.UWBParams{}, fmt.Errorf("decode uwb config: key len %d: %w", k, ErrInvalidSessionKeyLen)
	}
	if len(payload) < off+k+2+1+1 {
		return ranging.UWBParams{}, fmt.Errorf("decode uwb config: %w", ErrTruncated)
	}
	p.SessionKey = append([]byte(nil), payload[off:off+k]...)
	off += k
	p.CountryCode[0] = payload[off]
	off++
	p.CountryCode[1] = payload[off]
	off++
	if p.CountryCode[0] < 'A' || p.CountryCode[0] > 'Z' || p.CountryCode[1] < 'A' || p.CountryCode[1] > 'Z' {
		return ranging.UWBParams{}, fmt.Errorf("decode uwb config: %w", ErrInvalidCountryCode)
	}
	p.Role = ranging.DeviceRole(payload[off])
	off++
	p.DeviceMode = ranging.UWBDeviceMode(payload[off])

	return p, nil
}

func encodeBTConfig(buf []byte, addr ranging.BTAddress, securityLevel uint8, includeSecurity bool) (int, error) {
	size := 6
	if includeSecurity {
		size = 7
	}
	if len(buf) < size {
		return 0, fmt.Errorf("encode bt config: %w", ErrBufTooSmall)
	}
	copy(buf[0:6], addr[:])
	if includeSecurity {
		buf[6] = securityLevel
	}
	return size, nil
}

func decodeBTConfig(payload []byte, includeSecurity bool) (ranging.BTAddress, uint8, error) {
	want := 6
	if includeSecurity {
		want = 7
	}
	if len(payload) < want {
		return ranging.BTAddress{}, 0, fmt.Errorf("decode bt config: %w", ErrTruncated)
	}
	var addr ranging.BTAddress
	copy(addr[:], payload[0:6])
	var level uint8
	if includeSecurity {
		level = payload[6]
	}
	return addr, level, nil
}

func encodeRTTConfig(buf []byte, p ranging.RTTParams) (int, error) {
	name := []byte(p.ServiceName)
	if len(name) > 0xFF {
		return 0, fmt.Errorf("encode rtt config: %w", ErrInvalidBTNameLength)
	}
	size := 1 + len(name) + 1 + 1
	if len(buf) < size {
		return 0, fmt.Errorf("encode rtt config: %w", ErrBufTooSmall)
	}
	buf[0] = uint8(len(name)) //nolint:gosec // bounded by the 0xFF check above
	copy(buf[1:1+len(name)], name)
	buf[1+len(name)] = uint8(p.Role)
	periodic := uint8(0)
	if p.PeriodicRanging {
		periodic = 1
	}
	buf[2+len(name)] = periodic
	return size, nil
}

func decodeRTTConfig(payload []byte) (ranging.RTTParams, error) {
	if len(payload) < 1 {
		return ranging.RTTParams{}, fmt.Errorf("decode rtt config: %w", ErrTruncated)
	}
	n := int(payload[0])
	if len(payload) < 1+n+1+1 {
		return ranging.RTTParams{}, fmt.Errorf("decode rtt config: %w", ErrTruncated)
	}
	name := string(payload[1 : 1+n])
	role := ranging.DeviceRole(payload[1+n])
	periodic := payload[2+n] != 0
	return ranging.RTTParams{ServiceName: name, Role: role, PeriodicRanging: periodic}, nil
}

// EncodeConfigBlock writes one TechConfig block for tech using params.
func EncodeConfigBlock(buf []byte, tech ranging.TechnologyTag, params ranging.RawRangingParams) (int, error) {
	var payload [configUWBSize]byte
	var n int
	var err error

	switch tech {
	case ranging.TechUWB:
		if params.UWB == nil {
			return 0, fmt.Errorf("encode config block: %w", ErrTruncated)
		}
		n, err = encodeUWBConfig(payload[:], *params.UWB)
	case ranging.TechCS:
		if params.CS == nil {
			return 0, fmt.Errorf("encode config block: %w", ErrTruncated)
		}
		n, err = encodeBTConfig(payload[:], params.CS.PeerAddress, uint8(params.CS.SecurityLevel), true)
	case ranging.TechRTT:
		if params.RTT == nil {
			return 0, fmt.Errorf("encode config block: %w", ErrTruncated)
		}
		n, err = encodeRTTConfig(payload[:], *params.RTT)
	case ranging.TechRSSI:
		if params.RSSI == nil {
			return 0, fmt.Errorf("encode config block: %w", ErrTruncated)
		}
		n, err = encodeBTConfig(payload[:], params.RSSI.PeerAddress, 0, false)
	default:
		return 0, fmt.Errorf("encode config block: %w", ErrUnknownMessageType)
	}
	if err != nil {
		return 0, err
	}
	return encodeBlock(buf, uint8(tech.BitIndex()), payload[:n])
}

// decodeConfigBlock decodes one TechConfig from a decodedBlock. Unknown
// tech_ids return ok=false with no error.
func decodeConfigBlock(b decodedBlock) (tech ranging.TechnologyTag, params ranging.RawRangingParams, ok bool, err error) {
	t, known := ranging.TechnologyFromBitIndex(uint(b.techID))
	if !known {
		return 0, ranging.RawRangingParams{}, false, nil
	}
	switch t {
	case ranging.TechUWB:
		var p ranging.UWBParams
		p, err = decodeUWBConfig(b.payload)
		if err == nil {
			params.UWB = &p
		}
	case ranging.TechCS:
		addr, level, decErr := decodeBTConfig(b.payload, true)
		err = decErr
		if err == nil {
			params.CS = &ranging.BTParams{PeerAddress: addr, SecurityLevel: ranging.SecurityLevel(level)}
		}
	case ranging.TechRTT:
		var p ranging.RTTParams
		p, err = decodeRTTConfig(b.payload)
		if err == nil {
			params.RTT = &p
		}
	case ranging.TechRSSI:
		addr, _, decErr := decodeBTConfig(b.payload, false)
		err = decErr
		if err == nil {
			params.RSSI = &ranging.BTParams{PeerAddress: addr}
		}
	}
	if err != nil {
		return 0, ranging.RawRangingParams{}, false, err
	}
	return t, params, true, nil
}
