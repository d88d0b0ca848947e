// Package registry owns the canonical in-memory set of control channels and
// the validation and merge rules for mutating them. The registry carries no
// locking of its own; the connection hub's run loop is the single writer and
// the only reader while the process is serving.
package registry

import (
	"encoding/json"
	"math"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Count is the fixed number of channels. Channels are identified by a dense
// id range 1..Count that never changes at runtime.
const Count = 10

// ErrOutOfRange is returned when a request names a channel id outside 1..Count.
var ErrOutOfRange = errors.New("channel id out of range")

// Mode selects which routing descriptor a channel dispatches through.
type Mode string

// Supported output modes.
const (
	ModeMIDI Mode = "midi"
	ModeOSC  Mode = "osc"
)

// Channel is one controllable slot: a normalized value, display attributes,
// and the routing descriptor for the output sink.
type Channel struct {
	ID              int     `json:"id"`
	Label           string  `json:"label"`
	Color           string  `json:"color"`
	Value           float64 `json:"value"`
	VisibleOnMobile bool    `json:"visibleOnMobile"`
	Mode            Mode    `json:"mode"`
	MIDIChannel     int     `json:"midiChannel"`
	MIDICC          int     `json:"midiCC"`
	OSCAddress      string  `json:"oscAddress"`
	OSCTargetIP     string  `json:"oscTargetIP"`
	OSCTargetPort   int     `json:"oscTargetPort"`
}

// Fields holds the subset of mutable channel fields present in a config
// update. A nil field was absent (or rejected); only non-nil fields were
// applied. The JSON shape matches the configUpdate wire message.
type Fields struct {
	Label           *string `json:"label,omitempty"`
	Color           *string `json:"color,omitempty"`
	VisibleOnMobile *bool   `json:"visibleOnMobile,omitempty"`
	Mode            *Mode   `json:"mode,omitempty"`
	MIDIChannel     *int    `json:"midiChannel,omitempty"`
	MIDICC          *int    `json:"midiCC,omitempty"`
	OSCAddress      *string `json:"oscAddress,omitempty"`
	OSCTargetIP     *string `json:"oscTargetIP,omitempty"`
	OSCTargetPort   *int    `json:"oscTargetPort,omitempty"`
}

// Empty reports whether no field in the update survived validation.
func (f Fields) Empty() bool {
	return f.Label == nil && f.Color == nil && f.VisibleOnMobile == nil &&
		f.Mode == nil && f.MIDIChannel == nil && f.MIDICC == nil &&
		f.OSCAddress == nil && f.OSCTargetIP == nil && f.OSCTargetPort == nil
}

// Preset overrides a channel's startup defaults. Used by the TOML preset
// file; nil fields keep the built-in default.
type Preset struct {
	Label           *string
	Color           *string
	Value           *float64
	VisibleOnMobile *bool
	Mode            *Mode
	MIDIChannel     *int
	MIDICC          *int
	OSCAddress      *string
	OSCTargetIP     *string
	OSCTargetPort   *int
}

var palette = [Count]string{
	"#ff4757", "#ffa502", "#ffdd59", "#2ed573", "#7bed9f",
	"#70a1ff", "#5352ed", "#a55eea", "#fd79a8", "#dfe6e9",
}

// Registry holds the canonical channel array.
type Registry struct {
	channels [Count]Channel
}

// New builds a registry with default channels, then applies the given
// presets. Preset fields are validated with the same rules as runtime
// config updates; an invalid preset field is a startup error rather than a
// silent drop.
func New(presets map[int]Preset) (*Registry, error) {
	r := &Registry{}
	for i := range r.channels {
		id := i + 1
		r.channels[i] = defaultChannel(id)
	}
	for id, p := range presets {
		if id < 1 || id > Count {
			return nil, errors.Wrapf(ErrOutOfRange, "preset channel %d", id)
		}
		if err := r.applyPreset(&r.channels[id-1], p); err != nil {
			return nil, errors.Wrapf(err, "preset channel %d", id)
		}
	}
	return r, nil
}

func defaultChannel(id int) Channel {
	return Channel{
		ID:              id,
		Label:           "Fader " + strconv.Itoa(id),
		Color:           palette[id-1],
		Value:           0,
		VisibleOnMobile: true,
		Mode:            ModeMIDI,
		MIDIChannel:     1,
		MIDICC:          id,
		OSCAddress:      "/fader/" + strconv.Itoa(id),
		OSCTargetIP:     "127.0.0.1",
		OSCTargetPort:   57121,
	}
}

func (r *Registry) applyPreset(ch *Channel, p Preset) error {
	set := func(name string, ok bool, apply func()) error {
		if !ok {
			return errors.Errorf("invalid %s", name)
		}
		apply()
		return nil
	}
	if p.Label != nil {
		if err := set("label", validLabel(*p.Label), func() { ch.Label = *p.Label }); err != nil {
			return err
		}
	}
	if p.Color != nil {
		if err := set("color", validColor(*p.Color), func() { ch.Color = *p.Color }); err != nil {
			return err
		}
	}
	if p.Value != nil {
		ch.Value = clamp(*p.Value)
	}
	if p.VisibleOnMobile != nil {
		ch.VisibleOnMobile = *p.VisibleOnMobile
	}
	if p.Mode != nil {
		if err := set("mode", validMode(*p.Mode), func() { ch.Mode = *p.Mode }); err != nil {
			return err
		}
	}
	if p.MIDIChannel != nil {
		if err := set("midiChannel", inRange(*p.MIDIChannel, 1, 16), func() { ch.MIDIChannel = *p.MIDIChannel }); err != nil {
			return err
		}
	}
	if p.MIDICC != nil {
		if err := set("midiCC", inRange(*p.MIDICC, 0, 127), func() { ch.MIDICC = *p.MIDICC }); err != nil {
			return err
		}
	}
	if p.OSCAddress != nil {
		if err := set("oscAddress", validOSCAddress(*p.OSCAddress), func() { ch.OSCAddress = *p.OSCAddress }); err != nil {
			return err
		}
	}
	if p.OSCTargetIP != nil {
		if err := set("oscTargetIP", validIPv4(*p.OSCTargetIP), func() { ch.OSCTargetIP = *p.OSCTargetIP }); err != nil {
			return err
		}
	}
	if p.OSCTargetPort != nil {
		if err := set("oscTargetPort", inRange(*p.OSCTargetPort, 1, 65535), func() { ch.OSCTargetPort = *p.OSCTargetPort }); err != nil {
			return err
		}
	}
	return nil
}

// ApplyValue clamps raw into [0,1], stores it on the channel, and reports the
// stored value plus whether it differs from the previous one. Out-of-range
// ids leave the registry untouched.
func (r *Registry) ApplyValue(id int, raw float64) (float64, bool, error) {
	if id < 1 || id > Count {
		return 0, false, errors.Wrapf(ErrOutOfRange, "channel %d", id)
	}
	ch := &r.channels[id-1]
	v := clamp(raw)
	changed := v != ch.Value
	ch.Value = v
	return v, changed, nil
}

// ApplyConfig merges a partial config update into the channel. Each field in
// the whitelist is decoded and validated independently: a field with the
// wrong JSON type or an out-of-range value is dropped while the remaining
// valid fields still apply. Unknown keys are ignored. The returned Fields
// holds exactly what was applied.
func (r *Registry) ApplyConfig(id int, raw map[string]json.RawMessage) (Fields, error) {
	if id < 1 || id > Count {
		return Fields{}, errors.Wrapf(ErrOutOfRange, "channel %d", id)
	}
	ch := &r.channels[id-1]

	var applied Fields
	if s, ok := decodeString(raw["label"]); ok && validLabel(s) {
		ch.Label = s
		applied.Label = &s
	}
	if s, ok := decodeString(raw["color"]); ok && validColor(s) {
		ch.Color = s
		applied.Color = &s
	}
	if b, ok := decodeBool(raw["visibleOnMobile"]); ok {
		ch.VisibleOnMobile = b
		applied.VisibleOnMobile = &b
	}
	if s, ok := decodeString(raw["mode"]); ok && validMode(Mode(s)) {
		m := Mode(s)
		ch.Mode = m
		applied.Mode = &m
	}
	if n, ok := decodeInt(raw["midiChannel"]); ok && inRange(n, 1, 16) {
		ch.MIDIChannel = n
		applied.MIDIChannel = &n
	}
	if n, ok := decodeInt(raw["midiCC"]); ok && inRange(n, 0, 127) {
		ch.MIDICC = n
		applied.MIDICC = &n
	}
	if s, ok := decodeString(raw["oscAddress"]); ok && validOSCAddress(s) {
		ch.OSCAddress = s
		applied.OSCAddress = &s
	}
	if s, ok := decodeString(raw["oscTargetIP"]); ok && validIPv4(s) {
		ch.OSCTargetIP = s
		applied.OSCTargetIP = &s
	}
	if n, ok := decodeInt(raw["oscTargetPort"]); ok && inRange(n, 1, 65535) {
		ch.OSCTargetPort = n
		applied.OSCTargetPort = &n
	}
	return applied, nil
}

// Get returns a copy of the channel's current state.
func (r *Registry) Get(id int) (Channel, error) {
	if id < 1 || id > Count {
		return Channel{}, errors.Wrapf(ErrOutOfRange, "channel %d", id)
	}
	return r.channels[id-1], nil
}

// Snapshot returns a copy of all channels in id order. Callers must take the
// snapshot inside the hub's serialization boundary to observe a consistent
// state.
func (r *Registry) Snapshot() []Channel {
	out := make([]Channel, Count)
	copy(out, r.channels[:])
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func decodeString(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeBool(raw json.RawMessage) (bool, bool) {
	if raw == nil {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

func decodeInt(raw json.RawMessage) (int, bool) {
	if raw == nil {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

func validLabel(s string) bool {
	return strings.TrimSpace(s) != ""
}

func validColor(s string) bool {
	return colorPattern.MatchString(s)
}

func validMode(m Mode) bool {
	return m == ModeMIDI || m == ModeOSC
}

func validOSCAddress(s string) bool {
	return strings.HasPrefix(s, "/") && len(s) > 1
}

func validIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

func inRange(n, lo, hi int) bool {
	return n >= lo && n <= hi
}
