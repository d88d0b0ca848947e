package registry

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pkg/errors"
)

func mustNew(t *testing.T) *Registry {
	t.Helper()
	r, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func rawConfig(t *testing.T, jsonStr string) map[string]json.RawMessage {
	t.Helper()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	return raw
}

func TestApplyValueClamps(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"above range", 1.5, 1.0},
		{"below range", -0.2, 0.0},
		{"upper bound", 1.0, 1.0},
		{"lower bound", 0.0, 0.0},
		{"in range unchanged", 0.42, 0.42},
		{"positive infinity", math.Inf(1), 1.0},
		{"negative infinity", math.Inf(-1), 0.0},
		{"nan", math.NaN(), 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := mustNew(t)
			stored, _, err := r.ApplyValue(1, tc.in)
			assert.Equal(t, nil, err)
			assert.Equal(t, tc.want, stored)

			// Clamping is idempotent: re-submitting the stored value
			// stores it unchanged and reports no change.
			again, changed, err := r.ApplyValue(1, stored)
			assert.Equal(t, nil, err)
			assert.Equal(t, stored, again)
			assert.Equal(t, false, changed)
		})
	}
}

func TestApplyValueReportsChange(t *testing.T) {
	r := mustNew(t)

	_, changed, err := r.ApplyValue(3, 0.7)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, changed)

	_, changed, err = r.ApplyValue(3, 0.7)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, changed)
}

func TestApplyValueOutOfRange(t *testing.T) {
	r := mustNew(t)
	before := r.Snapshot()

	for _, id := range []int{0, -1, 11, 100} {
		_, _, err := r.ApplyValue(id, 0.5)
		if !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("id %d: want ErrOutOfRange, got %v", id, err)
		}
	}

	if !reflect.DeepEqual(before, r.Snapshot()) {
		t.Fatal("out-of-range value changes mutated the registry")
	}
}

func TestApplyConfigOutOfRange(t *testing.T) {
	r := mustNew(t)
	before := r.Snapshot()

	_, err := r.ApplyConfig(11, rawConfig(t, `{"label":"X"}`))
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("want ErrOutOfRange, got %v", err)
	}
	if !reflect.DeepEqual(before, r.Snapshot()) {
		t.Fatal("out-of-range config change mutated the registry")
	}
}

func TestApplyConfigPartialAcceptance(t *testing.T) {
	r := mustNew(t)

	// An out-of-range port must not reject the label in the same request.
	applied, err := r.ApplyConfig(2, rawConfig(t, `{"oscTargetPort":99999,"label":"OK"}`))
	assert.Equal(t, nil, err)
	if applied.Label == nil {
		t.Fatal("label was not applied")
	}
	assert.Equal(t, "OK", *applied.Label)
	if applied.OSCTargetPort != nil {
		t.Fatal("invalid port was applied")
	}

	ch, err := r.Get(2)
	assert.Equal(t, nil, err)
	assert.Equal(t, "OK", ch.Label)
	assert.Equal(t, 57121, ch.OSCTargetPort)
}

func TestApplyConfigValidators(t *testing.T) {
	cases := []struct {
		name     string
		config   string
		accepted bool
	}{
		{"empty label", `{"label":"  "}`, false},
		{"valid label", `{"label":"Kick"}`, true},
		{"bad color", `{"color":"red"}`, false},
		{"short hex color", `{"color":"#f00"}`, true},
		{"long hex color", `{"color":"#ff4757aa"}`, true},
		{"bool visibility", `{"visibleOnMobile":false}`, true},
		{"non-bool visibility", `{"visibleOnMobile":"yes"}`, false},
		{"bad mode", `{"mode":"dmx"}`, false},
		{"osc mode", `{"mode":"osc"}`, true},
		{"midi channel low", `{"midiChannel":0}`, false},
		{"midi channel high", `{"midiChannel":17}`, false},
		{"midi channel ok", `{"midiChannel":16}`, true},
		{"midi cc high", `{"midiCC":128}`, false},
		{"midi cc zero", `{"midiCC":0}`, true},
		{"fractional cc", `{"midiCC":1.5}`, false},
		{"no-slash address", `{"oscAddress":"fader/1"}`, false},
		{"valid address", `{"oscAddress":"/drums/kick"}`, true},
		{"hostname not ip", `{"oscTargetIP":"localhost"}`, false},
		{"ipv6 rejected", `{"oscTargetIP":"::1"}`, false},
		{"valid ipv4", `{"oscTargetIP":"192.168.1.20"}`, true},
		{"port zero", `{"oscTargetPort":0}`, false},
		{"port max", `{"oscTargetPort":65535}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := mustNew(t)
			applied, err := r.ApplyConfig(1, rawConfig(t, tc.config))
			assert.Equal(t, nil, err)
			assert.Equal(t, !tc.accepted, applied.Empty())
		})
	}
}

func TestApplyConfigIgnoresUnknownFields(t *testing.T) {
	r := mustNew(t)
	applied, err := r.ApplyConfig(1, rawConfig(t, `{"bogus":1,"value":0.9}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, applied.Empty())

	ch, _ := r.Get(1)
	assert.Equal(t, 0.0, ch.Value)
}

func TestSnapshotReflectsMutationsInOrder(t *testing.T) {
	r := mustNew(t)

	values := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	for i, v := range values {
		if _, _, err := r.ApplyValue(i+1, v); err != nil {
			t.Fatalf("ApplyValue(%d): %v", i+1, err)
		}
	}

	snap := r.Snapshot()
	assert.Equal(t, Count, len(snap))
	for i, ch := range snap {
		assert.Equal(t, i+1, ch.ID)
		assert.Equal(t, values[i], ch.Value)
	}

	// The snapshot is a copy; mutating the registry afterwards must not
	// show through.
	_, _, _ = r.ApplyValue(1, 0.0)
	assert.Equal(t, values[0], snap[0].Value)
}

func TestNewAppliesPresets(t *testing.T) {
	label := "Kick"
	mode := ModeOSC
	port := 9000
	r, err := New(map[int]Preset{
		1: {Label: &label, Mode: &mode, OSCTargetPort: &port},
	})
	assert.Equal(t, nil, err)

	ch, _ := r.Get(1)
	assert.Equal(t, "Kick", ch.Label)
	assert.Equal(t, ModeOSC, ch.Mode)
	assert.Equal(t, 9000, ch.OSCTargetPort)

	// Untouched channels keep their defaults.
	ch2, _ := r.Get(2)
	assert.Equal(t, "Fader 2", ch2.Label)
	assert.Equal(t, ModeMIDI, ch2.Mode)
}

func TestNewRejectsInvalidPresets(t *testing.T) {
	bad := "not-a-color"
	if _, err := New(map[int]Preset{1: {Color: &bad}}); err == nil {
		t.Fatal("want error for invalid preset color")
	}
	port := 70000
	if _, err := New(map[int]Preset{1: {OSCTargetPort: &port}}); err == nil {
		t.Fatal("want error for invalid preset port")
	}
	if _, err := New(map[int]Preset{11: {}}); err == nil {
		t.Fatal("want error for out-of-range preset id")
	}
}
