package sink

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/scgolang/osc"

	"github.com/faderhub/faderhub/internal/registry"
)

// Result reports the outcome of one dispatch. Message is ready for the
// activity log; on failure it carries an ERROR tag and Err holds the cause.
type Result struct {
	ChannelID int
	Message   string
	Err       error
}

type job struct {
	channel   registry.Channel
	transport bool
	action    string
	value     int
}

// Dispatcher maps changed channels to sends against the output sink. Sends
// run on the dispatcher's own goroutine so a slow or dead sink never blocks
// the hub's message loop; outcomes flow back over Results.
type Dispatcher struct {
	transport Transport
	bridge    *net.UDPAddr
	queue     chan job
	results   chan Result
	quit      chan struct{}
	done      chan struct{}
}

// NewDispatcher builds a dispatcher sending MIDI-bridged messages to the
// given bridge address. Call Run in its own goroutine and Close on shutdown.
func NewDispatcher(transport Transport, bridge *net.UDPAddr) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		bridge:    bridge,
		queue:     make(chan job, 64),
		results:   make(chan Result, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Results delivers dispatch outcomes, one per accepted job.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Dispatch queues a send for the channel's current state. It never blocks:
// if the queue is full the send is dropped and reported as a failure.
func (d *Dispatcher) Dispatch(ch registry.Channel) {
	d.enqueue(job{channel: ch})
}

// DispatchTransport queues a transport-control send (fixed CC on MIDI
// channel 1). Unknown actions are rejected by the hub before reaching here.
func (d *Dispatcher) DispatchTransport(action string, value int) {
	if value < 0 {
		value = 0
	}
	if value > 127 {
		value = 127
	}
	d.enqueue(job{transport: true, action: action, value: value})
}

func (d *Dispatcher) enqueue(j job) {
	select {
	case d.queue <- j:
	default:
		d.report(Result{
			ChannelID: j.channel.ID,
			Message:   fmt.Sprintf("ERROR: dispatch queue full, dropped send for channel %d", j.channel.ID),
			Err:       errors.New("dispatch queue full"),
		})
	}
}

// Run processes queued sends until Close is called.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		case j := <-d.queue:
			d.report(d.send(j))
		}
	}
}

// Close stops the run loop and closes the underlying transport.
func (d *Dispatcher) Close() error {
	close(d.quit)
	<-d.done
	return d.transport.Close()
}

func (d *Dispatcher) report(r Result) {
	select {
	case d.results <- r:
	default:
		log.Warn().Str("message", r.Message).Msg("dispatch result dropped, hub not draining")
	}
}

func (d *Dispatcher) send(j job) Result {
	if j.transport {
		return d.sendTransport(j)
	}
	ch := j.channel
	switch ch.Mode {
	case registry.ModeOSC:
		return d.sendOSC(ch)
	default:
		return d.sendMIDI(ch)
	}
}

func (d *Dispatcher) sendMIDI(ch registry.Channel) Result {
	_, _, value := EncodeMIDI(ch)
	m := osc.Message{
		Address: BridgeAddress,
		Arguments: osc.Arguments{
			osc.Int(int32(ch.MIDIChannel)),
			osc.Int(int32(ch.MIDICC)),
			osc.Int(int32(value)),
		},
	}
	if err := d.transport.Send(d.bridge, m); err != nil {
		return failure(ch.ID, errors.Wrapf(err, "sending MIDI cc%d for channel %d", ch.MIDICC, ch.ID))
	}
	return Result{
		ChannelID: ch.ID,
		Message:   fmt.Sprintf("MIDI ch%d cc%d → %d (%s)", ch.MIDIChannel, ch.MIDICC, value, ch.Label),
	}
}

func (d *Dispatcher) sendOSC(ch registry.Channel) Result {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ch.OSCTargetIP, strconv.Itoa(ch.OSCTargetPort)))
	if err != nil {
		return failure(ch.ID, errors.Wrapf(err, "resolving OSC target for channel %d", ch.ID))
	}
	m := osc.Message{
		Address:   ch.OSCAddress,
		Arguments: osc.Arguments{osc.Float(float32(ch.Value))},
	}
	if err := d.transport.Send(addr, m); err != nil {
		return failure(ch.ID, errors.Wrapf(err, "sending OSC %s for channel %d", ch.OSCAddress, ch.ID))
	}
	return Result{
		ChannelID: ch.ID,
		Message:   fmt.Sprintf("OSC %s → %.3f @ %s:%d (%s)", ch.OSCAddress, ch.Value, ch.OSCTargetIP, ch.OSCTargetPort, ch.Label),
	}
}

func (d *Dispatcher) sendTransport(j job) Result {
	cc, ok := TransportCC(j.action)
	if !ok {
		return failure(0, errors.Errorf("unknown transport action %q", j.action))
	}
	m := osc.Message{
		Address: BridgeAddress,
		Arguments: osc.Arguments{
			osc.Int(1),
			osc.Int(int32(cc)),
			osc.Int(int32(j.value)),
		},
	}
	if err := d.transport.Send(d.bridge, m); err != nil {
		return failure(0, errors.Wrapf(err, "sending transport %s", j.action))
	}
	return Result{Message: fmt.Sprintf("Transport %s → %d", j.action, j.value)}
}

func failure(id int, err error) Result {
	return Result{
		ChannelID: id,
		Message:   "ERROR: " + err.Error(),
		Err:       err,
	}
}
