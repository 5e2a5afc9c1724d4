package codec_test

import (
	"errors"
	"testing"

	"github.com/go-ranging/goranging/internal/codec"
	"github.com/go-ranging/goranging/internal/ranging"
)

func TestSetConfigurationUWBRoundTrip(t *testing.T) {
	t.Parallel()

	uwb := ranging.UWBParams{
		LocalAddress:   0x1234,
		SessionID:      0xDEADBEEF,
		ConfigID:       3,
		Channel:        9,
		PreambleIndex:  10,
		IntervalMs:     200,
		SlotDurationMs: 2,
		SessionKey:     make([]byte, 16),
		CountryCode:    [2]byte{'U', 'S'},
		Role:           ranging.RoleInitiator,
		DeviceMode:     ranging.UWBModeController,
	}
	m := codec.SetConfiguration{
		TechsSet: ranging.TechnologyBitmap(0).Set(ranging.TechUWB),
		Params:   map[ranging.TechnologyTag]ranging.RawRangingParams{ranging.TechUWB: {UWB: &uwb}},
	}

	buf, err := codec.MarshalSetConfiguration(m)
	if err != nil {
		t.Fatalf("MarshalSetConfiguration() error: %v", err)
	}

	got, err := codec.UnmarshalSetConfiguration(buf[codec.HeaderSize:])
	if err != nil {
		t.Fatalf("UnmarshalSetConfiguration() error: %v", err)
	}

	gotUWB := got.Params[ranging.TechUWB].UWB
	if gotUWB == nil {
		t.Fatal("UWB params nil after round trip")
	}
	// LocalAddress is written on the wire but decoded back as PeerAddress:
	// each side announces its own address as the field the peer records.
	if gotUWB.PeerAddress != uwb.LocalAddress {
		t.Errorf("PeerAddress = %#x, want %#x", gotUWB.PeerAddress, uwb.LocalAddress)
	}
	if gotUWB.SessionID != uwb.SessionID {
		t.Errorf("SessionID = %#x, want %#x", gotUWB.SessionID, uwb.SessionID)
	}
	if gotUWB.Channel != uwb.Channel || gotUWB.PreambleIndex != uwb.PreambleIndex {
		t.Errorf("Channel/Preamble = %d/%d, want %d/%d", gotUWB.Channel, gotUWB.PreambleIndex,
			uwb.Channel, uwb.PreambleIndex)
	}
	if gotUWB.CountryCode != uwb.CountryCode {
		t.Errorf("CountryCode = %s, want %s", gotUWB.CountryCode, uwb.CountryCode)
	}
}

func TestEncodeConfigBlockUWBRejectsInvalidSessionKeyLength(t *testing.T) {
	t.Parallel()

	m := codec.SetConfiguration{
		TechsSet: ranging.TechnologyBitmap(0).Set(ranging.TechUWB),
		Params: map[ranging.TechnologyTag]ranging.RawRangingParams{
			ranging.TechUWB: {UWB: &ranging.UWBParams{SessionKey: make([]byte, 5), CountryCode: [2]byte{'U', 'S'}}},
		},
	}
	if _, err := codec.MarshalSetConfiguration(m); !errors.Is(err, codec.ErrInvalidSessionKeyLen) {
		t.Errorf("MarshalSetConfiguration() error = %v, want ErrInvalidSessionKeyLen", err)
	}
}

func TestEncodeConfigBlockUWBRejectsInvalidCountryCode(t *testing.T) {
	t.Parallel()

	m := codec.SetConfiguration{
		TechsSet: ranging.TechnologyBitmap(0).Set(ranging.TechUWB),
		Params: map[ranging.TechnologyTag]ranging.RawRangingParams{
			ranging.TechUWB: {UWB: &ranging.UWBParams{SessionKey: make([]byte, 8), CountryCode: [2]byte{'1', '2'}}},
		},
	}
	if _, err := codec.MarshalSetConfiguration(m); !errors.Is(err, codec.ErrInvalidCountryCode) {
		t.Errorf("MarshalSetConfiguration() error = %v, want ErrInvalidCountryCode", err)
	}
}

func TestSetConfigurationRTTRoundTrip(t *testing.T) {
	t.Parallel()

	rtt := ranging.RTTParams{ServiceName: "ranging-rtt", Role: ranging.RoleResponder, PeriodicRanging: true}
	m := codec.SetConfiguration{
		TechsSet: ranging.TechnologyBitmap(0).Set(ranging.TechRTT),
		Params:   map[ranging.TechnologyTag]ranging.RawRangingParams{ranging.TechRTT: {RTT: &rtt}},
	}

	buf, err := codec.MarshalSetConfiguration(m)
	if err != nil {
		t.Fatalf("MarshalSetConfiguration() error: %v", err)
	}
	got, err := codec.UnmarshalSetConfiguration(buf[codec.HeaderSize:])
	if err != nil {
		t.Fatalf("UnmarshalSetConfiguration() error: %v", err)
	}

	gotRTT := got.Params[ranging.TechRTT].RTT
	if gotRTT == nil || gotRTT.ServiceName != rtt.ServiceName || !gotRTT.PeriodicRanging {
		t.Errorf("RTT = %+v, want %+v", gotRTT, rtt)
	}
}

func TestSetConfigurationCSRoundTrip(t *testing.T) {
	t.Parallel()

	cs := ranging.BTParams{PeerAddress: ranging.BTAddress{9, 8, 7, 6, 5, 4}, SecurityLevel: ranging.SecurityLevelThree}
	m := codec.SetConfiguration{
		TechsSet: ranging.TechnologyBitmap(0).Set(ranging.TechCS),
		Params:   map[ranging.TechnologyTag]ranging.RawRangingParams{ranging.TechCS: {CS: &cs}},
	}

	buf, err := codec.MarshalSetConfiguration(m)
	if err != nil {
		t.Fatalf("MarshalSetConfiguration() error: %v", err)
	}
	got, err := codec.UnmarshalSetConfiguration(buf[codec.HeaderSize:])
	if err != nil {
		t.Fatalf("UnmarshalSetConfiguration() error: %v", err)
	}

	gotCS := got.Params[ranging.TechCS].CS
	if gotCS == nil || gotCS.PeerAddress != cs.PeerAddress || gotCS.SecurityLevel != cs.SecurityLevel {
		t.Errorf("CS = %+v, want %+v", gotCS, cs)
	}
}

func TestEncodeCapabilityBlockUnknownTechErrors(t *testing.T) {
	t.Parallel()

	var buf [32]byte
	_, err := codec.EncodeCapabilityBlock(buf[:], ranging.TechCapability{Technology: ranging.TechnologyTag(99)})
	if !errors.Is(err, codec.ErrUnknownMessageType) {
		t.Errorf("EncodeCapabilityBlock() error = %v, want ErrUnknownMessageType", err)
	}
}

func TestCapabilityResponseUWBRoundTrip(t *testing.T) {
	t.Parallel()

	cap := ranging.TechCapability{
		Technology:           ranging.TechUWB,
		Address:              0xABCD,
		SupportedChannels:    0b1010,
		SupportedPreambles:   0b0110,
		SupportedConfigIDs:   0b0011,
		MinRangingIntervalMs: 100,
		MinSlotDurationMs:    2,
		SupportedRoles:       0b11,
	}
	m := codec.CapabilityResponse{
		Supported:     ranging.TechnologyBitmap(0).Set(ranging.TechUWB),
		PriorityOrder: ranging.TechnologyBitmap(0).Set(ranging.TechUWB),
		Capabilities:  []ranging.TechCapability{cap},
	}

	buf, err := codec.MarshalCapabilityResponse(m)
	if err != nil {
		t.Fatalf("MarshalCapabilityResponse() error: %v", err)
	}
	got, err := codec.UnmarshalCapabilityResponse(buf[codec.HeaderSize:])
	if err != nil {
		t.Fatalf("UnmarshalCapabilityResponse() error: %v", err)
	}
	if len(got.Capabilities) != 1 || got.Capabilities[0] != cap {
		t.Errorf("Capabilities = %+v, want %+v", got.Capabilities, []ranging.TechCapability{cap})
	}
}
