package sink

import (
	"math"

	"github.com/faderhub/faderhub/internal/registry"
)

// BridgeAddress is the OSC address the MIDI bridge listens on for
// Control-Change triples: /midi/cc <channel> <cc> <value>.
const BridgeAddress = "/midi/cc"

const statusControlChange = 0xB0

// EncodeMIDI maps a channel's normalized value to a 3-byte Control-Change
// event: status 0xB0|(midiChannel-1), the controller number, and the value
// scaled to 0..127.
func EncodeMIDI(ch registry.Channel) (status, data1, data2 byte) {
	status = statusControlChange | byte(ch.MIDIChannel-1)&0x0f
	data1 = byte(ch.MIDICC)
	data2 = midiValue(ch.Value)
	return status, data1, data2
}

func midiValue(v float64) byte {
	n := int(math.Round(v * 127))
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	return byte(n)
}

// transportCC maps transport actions to their fixed controller numbers on
// MIDI channel 1.
var transportCC = map[string]int{
	"record":     116,
	"play":       117,
	"stop":       118,
	"rewind":     119,
	"undo":       120,
	"loop":       121,
	"click":      122,
	"marker":     123,
	"prevMarker": 124,
	"nextMarker": 125,
	"save":       126,
}

// TransportCC returns the controller number for a transport action, and
// whether the action is known.
func TransportCC(action string) (int, bool) {
	cc, ok := transportCC[action]
	return cc, ok
}
