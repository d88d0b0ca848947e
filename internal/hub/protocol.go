// Package hub owns the set of live client connections and the single
// serialization point through which every channel mutation flows: validate
// against the registry, hand off to the output dispatcher, record to the
// activity log, and fan the resulting state out to every connection.
package hub

import (
	"encoding/json"
	"time"

	"github.com/faderhub/faderhub/internal/msglog"
	"github.com/faderhub/faderhub/internal/registry"
)

// Inbound message types.
const (
	typeSliderChange = "sliderChange"
	typeConfigUpdate = "configUpdate"
	typePing         = "ping"
	typeTransport    = "transport"
)

// Outbound message types.
const (
	typeFullState        = "fullState"
	typeSliderUpdate     = "sliderUpdate"
	typeConnectionStatus = "connectionStatus"
	typeLogUpdate        = "logUpdate"
	typePong             = "pong"
)

const logTimeFormat = "15:04:05"

// request is the decoded envelope of any client message. Fields irrelevant
// to a given type are left at their zero value; config stays raw so the
// registry can validate each field independently.
type request struct {
	Type   string                     `json:"type"`
	ID     int                        `json:"id"`
	Value  float64                    `json:"value"`
	Config map[string]json.RawMessage `json:"config"`
	Action string                     `json:"action"`
}

// inboundFrame pairs a raw client message with its sender for routing
// through the hub loop.
type inboundFrame struct {
	sender *Client
	data   []byte
}

type logEntryMsg struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

type fullStateMsg struct {
	Type             string             `json:"type"`
	Sliders          []registry.Channel `json:"sliders"`
	ConnectedClients int                `json:"connectedClients"`
	MessageLog       []logEntryMsg      `json:"messageLog"`
}

type sliderUpdateMsg struct {
	Type  string  `json:"type"`
	ID    int     `json:"id"`
	Value float64 `json:"value"`
}

type configUpdateMsg struct {
	Type   string          `json:"type"`
	ID     int             `json:"id"`
	Config registry.Fields `json:"config"`
}

type connectionStatusMsg struct {
	Type             string `json:"type"`
	Connected        bool   `json:"connected"`
	ConnectedClients int    `json:"connectedClients"`
}

type logUpdateMsg struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

type pongMsg struct {
	Type string `json:"type"`
}

func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All outbound types marshal by construction.
		panic(err)
	}
	return data
}

func encodeFullState(sliders []registry.Channel, connected int, entries []msglog.Entry) []byte {
	msg := fullStateMsg{
		Type:             typeFullState,
		Sliders:          sliders,
		ConnectedClients: connected,
		MessageLog:       make([]logEntryMsg, 0, len(entries)),
	}
	for _, e := range entries {
		msg.MessageLog = append(msg.MessageLog, encodeLogEntry(e))
	}
	return marshal(msg)
}

func encodeLogEntry(e msglog.Entry) logEntryMsg {
	return logEntryMsg{Timestamp: e.Timestamp.Format(logTimeFormat), Message: e.Message}
}

func encodeSliderUpdate(id int, value float64) []byte {
	return marshal(sliderUpdateMsg{Type: typeSliderUpdate, ID: id, Value: value})
}

func encodeConfigUpdate(id int, fields registry.Fields) []byte {
	return marshal(configUpdateMsg{Type: typeConfigUpdate, ID: id, Config: fields})
}

func encodeConnectionStatus(connected int) []byte {
	return marshal(connectionStatusMsg{Type: typeConnectionStatus, Connected: true, ConnectedClients: connected})
}

func encodeLogUpdate(ts time.Time, message string) []byte {
	return marshal(logUpdateMsg{Type: typeLogUpdate, Timestamp: ts.Format(logTimeFormat), Message: message})
}

func encodePong() []byte {
	return marshal(pongMsg{Type: typePong})
}
