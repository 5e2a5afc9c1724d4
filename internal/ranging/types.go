package ranging

import (
	"crypto/rand"
	"fmt"
)

// DeviceId is a process-unique opaque identifier for a remote ranging
// participant. Equality and hashing are structural; a DeviceId is created
// by the caller when expressing a preference and stays alive as long as
// any session references it.
type DeviceId [16]byte

// NewDeviceId generates a random DeviceId. The zero value is never
// returned.
func NewDeviceId() (DeviceId, error) {
	var id DeviceId
	for {
		if _, err := rand.Read(id[:]); err != nil {
			return DeviceId{}, fmt.Errorf("generate device id: %w", err)
		}
		if id != (DeviceId{}) {
			return id, nil
		}
	}
}

func (d DeviceId) String() string {
	return fmt.Sprintf("%x", d[:])
}

// MarshalText renders a DeviceId as lowercase hex, so JSON encoders (the
// daemon's /v1/sessions endpoint, in particular) emit a readable string
// instead of a 16-element byte array.
func (d DeviceId) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// TechnologyTag is a closed enumeration of ranging technologies with a
// stable bit index used by the OOB codec's bitmaps (spec 4.A).
type TechnologyTag uint8

const (
	TechUWB TechnologyTag = iota
	TechCS
	TechRTT
	TechRSSI

	techCount = 4
)

// BitIndex returns the technology's stable bit index for bitmap
// serialization (UWB=0, CS=1, RTT=2, RSSI=3).
func (t TechnologyTag) BitIndex() uint {
	return uint(t)
}

// TechnologyFromBitIndex maps a bit index back to a TechnologyTag. ok is
// false for any index outside the closed set.
func TechnologyFromBitIndex(idx uint) (TechnologyTag, bool) {
	if idx >= techCount {
		return 0, false
	}
	return TechnologyTag(idx), true
}

var technologyNames = [techCount]string{"UWB", "CS", "RTT", "RSSI"}

func (t TechnologyTag) String() string {
	if int(t) < len(technologyNames) {
		return technologyNames[t]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// TechnologyBitmap is a 2-byte little-endian bitmap of TechnologyTag bits,
// as used throughout the OOB codec (spec 4.A).
type TechnologyBitmap uint16

// Has reports whether tech's bit is set.
func (b TechnologyBitmap) Has(tech TechnologyTag) bool {
	return b&(1<<tech.BitIndex()) != 0
}

// Set returns a copy of b with tech's bit set.
func (b TechnologyBitmap) Set(tech TechnologyTag) TechnologyBitmap {
	return b | 1<<tech.BitIndex()
}

// Technologies returns the set bits as a slice of tags, in bit order.
func (b TechnologyBitmap) Technologies() []TechnologyTag {
	var out []TechnologyTag
	for i := range uint(techCount) {
		if b&(1<<i) != 0 {
			tag, _ := TechnologyFromBitIndex(i)
			out = append(out, tag)
		}
	}
	return out
}

// HasUnknownBits reports whether b has any bit set outside the closed
// technology set. Unknown bits on decode are a hard failure (spec 3).
func (b TechnologyBitmap) HasUnknownBits() bool {
	const knownMask = TechnologyBitmap(1<<techCount) - 1
	return b&^knownMask != 0
}

// AvailabilityState is the per-technology availability reported by the
// capability registry (spec 4.C).
type AvailabilityState uint8

const (
	NotSupported AvailabilityState = iota
	DisabledUser
	DisabledSystem
	Enabled
)

var availabilityNames = [...]string{"NOT_SUPPORTED", "DISABLED_USER", "DISABLED_SYSTEM", "ENABLED"}

func (a AvailabilityState) String() string {
	if int(a) < len(availabilityNames) {
		return availabilityNames[a]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(a))
}

// SecurityLevel is the BLE-CS security level ladder (spec 4.D step 3).
// Level four satisfies a SECURE constraint; level one or above satisfies
// BASIC.
type SecurityLevel uint8

const (
	SecurityLevelOne SecurityLevel = iota + 1
	SecurityLevelTwo
	SecurityLevelThree
	SecurityLevelFour
)

// SecurityRequirement is the constraint-declared minimum security posture
// (spec 3).
type SecurityRequirement uint8

const (
	SecurityBasic SecurityRequirement = iota
	SecuritySecure
)

// RangingMode is the constraint-declared technology-selection policy
// (spec 3, spec 4.D step 4).
type RangingMode uint8

const (
	ModeAuto RangingMode = iota
	ModeHighAccuracy
	ModeHighAccuracyPreferred
	ModeFused
)

// DeviceRole is the local device's role in an OOB negotiation (spec 4.D).
type DeviceRole uint8

const (
	RoleInitiator DeviceRole = iota + 1
	RoleResponder
)

// BTAddress is a 6-byte Bluetooth device address, transmitted big-endian
// and rendered canonically as "AA:BB:CC:DD:EE:FF" (spec 4.A).
type BTAddress [6]byte

func (a BTAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Measurement is a single scalar ranging quantity with its estimated error
// and confidence (spec 3). Engine-supplied defaults for unmeasured fields
// are confidence=0.0, error=0.0 (spec 6.3).
type Measurement struct {
	Value      float64
	Error      float64
	Confidence float64
}

// RangingData is one emitted measurement record (spec 3). Distance,
// azimuth, and elevation are each optionally present — absence is
// represented with a nil pointer, never faked with a zero value.
type RangingData struct {
	Peer        DeviceId
	Technology  TechnologyTag
	Distance    *Measurement
	Azimuth     *Measurement
	Elevation   *Measurement
	TimestampMs int64
}

// DataNotificationType selects the data-notification gate's filtering
// policy (spec 4.I).
type DataNotificationType uint8

const (
	NotificationDisable DataNotificationType = iota
	NotificationEnable
	NotificationProximityLevel
	NotificationProximityEdge
)

// DataNotificationConfig configures the data-notification gate (spec 3,
// 4.I).
type DataNotificationConfig struct {
	Type        DataNotificationType
	ProximityNear float64
	ProximityFar  float64
}

// SessionConfig holds the per-session policy knobs that are independent of
// any single technology (spec 3).
type SessionConfig struct {
	MeasurementLimit       uint64 // 0 = unlimited
	AoaNeeded              bool
	DataNotification       DataNotificationConfig
	BackgroundNotification DataNotificationConfig
	SensorFusionEnabled    bool
}

// RawRangingParams carries per-technology start parameters supplied
// directly by the caller (the "raw" path, as opposed to OOB negotiation)
// (spec 3). Validation of these parameters is the consuming adapter's
// responsibility.
type RawRangingParams struct {
	UWB  *UWBParams
	RTT  *RTTParams
	CS   *BTParams
	RSSI *BTParams
}

// UWBParams are the start parameters an adapter needs for a UWB session.
type UWBParams struct {
	LocalAddress  uint16
	PeerAddress   uint16
	SessionID     uint32
	ConfigID      uint8
	Channel       uint8
	PreambleIndex uint8
	IntervalMs    uint16
	SlotDurationMs uint8
	SessionKey    []byte
	CountryCode   [2]byte
	Role          DeviceRole
	DeviceMode    UWBDeviceMode
}

// UWBDeviceMode distinguishes UWB controller/controlee roles (spec 4.A).
type UWBDeviceMode uint8

const (
	UWBModeController UWBDeviceMode = iota + 1
	UWBModeControlee
)

// RTTParams are the start parameters an adapter needs for a WiFi-RTT
// session.
type RTTParams struct {
	ServiceName       string
	Role              DeviceRole
	PeriodicRanging   bool
	IntervalMs        uint16
}

// BTParams are the start parameters shared by BLE-CS and BLE-RSSI
// sessions: a peer Bluetooth address, plus an optional security level used
// only by CS.
type BTParams struct {
	PeerAddress   BTAddress
	SecurityLevel SecurityLevel // unused by RSSI
	IntervalMs    uint16
}

// OobRangingConstraints is the initiator-declared negotiation policy
// (spec 3).
type OobRangingConstraints struct {
	AllowedTechnologies TechnologyBitmap
	Security            SecurityRequirement
	Mode                RangingMode
	FastestIntervalMs   uint32
	SlowestIntervalMs   uint32
}

// Validate checks the fastest <= slowest invariant (spec 3).
func (c OobRangingConstraints) Validate() error {
	if c.FastestIntervalMs > c.SlowestIntervalMs {
		return fmt.Errorf("%w: fastest=%dms slowest=%dms", ErrInvalidConstraintRange,
			c.FastestIntervalMs, c.SlowestIntervalMs)
	}
	return nil
}

// ClosedReason is why a ranging adapter (or the peer session built on top
// of it) stopped (spec 4.F).
type ClosedReason uint8

const (
	ReasonRequested ClosedReason = iota
	ReasonFailedToStart
	ReasonLostConnection
	ReasonSystemPolicy
	ReasonLocalRequest
	ReasonRemoteRequest
	ReasonError
	ReasonForceStopped
)

var closedReasonNames = [...]string{
	"REQUESTED", "FAILED_TO_START", "LOST_CONNECTION", "SYSTEM_POLICY",
	"LOCAL_REQUEST", "REMOTE_REQUEST", "ERROR", "FORCE_STOPPED",
}

func (r ClosedReason) String() string {
	if int(r) < len(closedReasonNames) {
		return closedReasonNames[r]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(r))
}

// RangingError is the closed error enum exposed at the session API
// boundary (spec 6.5).
type RangingError uint8

const (
	ErrUnknown RangingError = iota
	ErrLocalRequest
	ErrRemoteRequest
	ErrUnsupported
	ErrSystemPolicy
	ErrNoPeersFound
	ErrNoCompatibleCapabilities
	ErrOobTimeout
	ErrOobProtocolError
)

var rangingErrorNames = [...]string{
	"UNKNOWN", "LOCAL_REQUEST", "REMOTE_REQUEST", "UNSUPPORTED", "SYSTEM_POLICY",
	"NO_PEERS_FOUND", "NO_COMPATIBLE_CAPABILITIES", "OOB_TIMEOUT", "OOB_PROTOCOL_ERROR",
}

func (e RangingError) String() string {
	if int(e) < len(rangingErrorNames) {
		return rangingErrorNames[e]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(e))
}

func (e RangingError) Error() string {
	return e.String()
}
