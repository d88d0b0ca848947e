package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/faderhub/faderhub/internal/registry"
)

// channelFile is the TOML preset file shape:
//
//	[[channel]]
//	id = 1
//	label = "Kick"
//	color = "#ff4757"
//	mode = "osc"
//	oscAddress = "/drums/kick"
type channelFile struct {
	Channel []channelPreset `toml:"channel"`
}

type channelPreset struct {
	ID              int      `toml:"id"`
	Label           *string  `toml:"label"`
	Color           *string  `toml:"color"`
	Value           *float64 `toml:"value"`
	VisibleOnMobile *bool    `toml:"visibleOnMobile"`
	Mode            *string  `toml:"mode"`
	MIDIChannel     *int     `toml:"midiChannel"`
	MIDICC          *int     `toml:"midiCC"`
	OSCAddress      *string  `toml:"oscAddress"`
	OSCTargetIP     *string  `toml:"oscTargetIP"`
	OSCTargetPort   *int     `toml:"oscTargetPort"`
}

// LoadChannels parses a TOML preset file into per-channel overrides keyed by
// channel id. Duplicate ids are an error.
func LoadChannels(path string) (map[int]registry.Preset, error) {
	var file channelFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, errors.Wrapf(err, "decoding channel presets %s", path)
	}

	presets := make(map[int]registry.Preset, len(file.Channel))
	for _, c := range file.Channel {
		if _, dup := presets[c.ID]; dup {
			return nil, errors.Errorf("duplicate preset for channel %d", c.ID)
		}
		p := registry.Preset{
			Label:           c.Label,
			Color:           c.Color,
			Value:           c.Value,
			VisibleOnMobile: c.VisibleOnMobile,
			MIDIChannel:     c.MIDIChannel,
			MIDICC:          c.MIDICC,
			OSCAddress:      c.OSCAddress,
			OSCTargetIP:     c.OSCTargetIP,
			OSCTargetPort:   c.OSCTargetPort,
		}
		if c.Mode != nil {
			mode := registry.Mode(*c.Mode)
			p.Mode = &mode
		}
		presets[c.ID] = p
	}
	return presets, nil
}
