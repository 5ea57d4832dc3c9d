package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	cmdBufferSize  = 256
)

var errBroadcasterStopped = errors.New("broadcaster stopped")

// Message is the envelope every display client receives.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	connection *websocket.Conn
}

type publishCmd struct {
	baseBroadcasterCmd
	event string
	state *domain.State
}

type ephemeralCmd struct {
	baseBroadcasterCmd
	event string
	data  json.RawMessage
}

type getClientCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster manages display client connections. It keeps the latest
// published state so a joining client is synced before it can miss anything.
type Broadcaster struct {
	cmdCh       chan broadcasterCmd
	clock       clockwork.Clock
	clients     map[*websocket.Conn]*clientWriter
	latest      *domain.State
	dataSent    uint64 // revision of the newest full state fanned out
	done        chan struct{}
	stopTimeout time.Duration
	maxClients  int
}

var _ domain.StatePublisher = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster. maxClients caps concurrent display
// clients; zero or less means no cap.
func NewBroadcaster(clock clockwork.Clock, maxClients int) *Broadcaster {
	b := &Broadcaster{
		cmdCh:       make(chan broadcasterCmd, cmdBufferSize),
		clock:       clock,
		clients:     make(map[*websocket.Conn]*clientWriter),
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
		maxClients:  maxClients,
	}
	go b.run()
	return b
}

// Register adds a client, sends it the latest state as initialData and
// announces the new client count to everyone.
func (b *Broadcaster) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !b.send(registerCmd{connection: conn, errorChannel: errCh}) {
		return errBroadcasterStopped
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a client and announces the new client count.
func (b *Broadcaster) Unregister(conn *websocket.Conn) {
	b.send(unregisterCmd{connection: conn})
}

// Publish sends state to every client. A state older than the latest
// published one is dropped.
func (b *Broadcaster) Publish(event string, state *domain.State) {
	b.send(publishCmd{event: event, state: state})
}

// Ephemeral relays data to every client without touching stored state.
// Names reserved for state events are rejected.
func (b *Broadcaster) Ephemeral(event string, data json.RawMessage) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return domain.Invalid("event name is required")
	}
	if domain.IsReservedEvent(event) {
		return domain.Invalid(fmt.Sprintf("event name %q is reserved", event))
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if !json.Valid(data) {
		return domain.Invalid("event data must be valid JSON")
	}
	if !b.send(ephemeralCmd{event: event, data: data}) {
		return errBroadcasterStopped
	}
	return nil
}

// GetClientCount returns the number of connected clients, or -1 on timeout.
func (b *Broadcaster) GetClientCount() int {
	replyCh := make(chan int, 1)
	if !b.send(getClientCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("GetClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every client with a close frame and waits for the actor to exit.
func (b *Broadcaster) Stop() {
	if !b.send(stopCmd{}) {
		return
	}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
		metrics.BroadcasterStopTimeoutsTotal.Inc()
	}
}

// send queues cmd unless the actor has already exited.
func (b *Broadcaster) send(cmd broadcasterCmd) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			metrics.BroadcasterPanicsTotal.Inc()
			b.closeAllClients("broadcaster panic")
		}
	}()

	depthTicker := b.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(b.cmdCh)
			metrics.BroadcasterCommandChannelDepth.Set(float64(depth))
			if depth > cmdBufferSize*8/10 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(b.cmdCh))
			}

		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.handleUnregister(c.connection)
			case publishCmd:
				b.handlePublish(c)
			case ephemeralCmd:
				b.fanOut(c.event, c.data)
			case getClientCountCmd:
				c.replyChannel <- len(b.clients)
			case stopCmd:
				b.handleStop()
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		slog.Warn("Rejecting client: max clients reached", "max_clients", b.maxClients)
		_ = c.connection.Close()
		c.errorChannel <- fmt.Errorf("max clients (%d) reached", b.maxClients)
		return
	}

	cw := newClientWriter(c.connection, b.clock)
	if b.latest != nil {
		if data, err := encode(domain.EventInitialData, b.latest); err == nil {
			cw.sendChannel <- data
			metrics.BroadcasterMessagesTotal.WithLabelValues(domain.EventInitialData).Inc()
		} else {
			slog.Error("Failed to marshal initial data", "error", err)
		}
	}
	b.clients[c.connection] = cw
	metrics.BroadcasterConnectedClients.Set(float64(len(b.clients)))

	slog.Debug("Client registered", "total_clients", len(b.clients))
	c.errorChannel <- nil
	b.announceClientCount()
}

func (b *Broadcaster) handleUnregister(conn *websocket.Conn) {
	cw, exists := b.clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(b.clients, conn)
	metrics.BroadcasterConnectedClients.Set(float64(len(b.clients)))

	slog.Debug("Client unregistered", "remaining_clients", len(b.clients))
	b.announceClientCount()
}

// handlePublish fans out a committed state. Commands publish from their own
// goroutines, so states may arrive out of order. A stale dataUpdate whose
// revision no full state has carried yet is replaced by the latest state.
func (b *Broadcaster) handlePublish(c publishCmd) {
	if b.latest != nil && c.state.Revision < b.latest.Revision {
		metrics.BroadcasterStaleUpdatesTotal.Inc()
		if c.event == domain.EventDataUpdate && c.state.Revision > b.dataSent {
			slog.Debug("Stale data update, sending latest state instead",
				"revision", c.state.Revision, "latest", b.latest.Revision)
			b.sendFullState()
			return
		}
		slog.Debug("Dropping stale state", "revision", c.state.Revision, "latest", b.latest.Revision)
		return
	}
	b.latest = c.state

	if c.event == domain.EventSettingsUpdate {
		b.fanOut(c.event, c.state.Settings)
		return
	}
	b.sendFullState()
}

func (b *Broadcaster) sendFullState() {
	b.dataSent = b.latest.Revision
	b.fanOut(domain.EventDataUpdate, b.latest)
}

func (b *Broadcaster) announceClientCount() {
	b.fanOut(domain.EventClientCount, len(b.clients))
}

// fanOut marshals once and queues the message on every writer. Clients whose
// buffer is full are evicted.
func (b *Broadcaster) fanOut(event string, payload any) {
	if len(b.clients) == 0 {
		return
	}
	data, err := encode(event, payload)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "event", event, "error", err)
		return
	}

	var slow []*websocket.Conn
	for conn, writer := range b.clients {
		select {
		case writer.sendChannel <- data:
		default:
			slow = append(slow, conn)
		}
	}
	metrics.BroadcasterMessagesTotal.WithLabelValues(metricEvent(event)).Inc()

	for _, conn := range slow {
		slog.Warn("Disconnecting slow client")
		metrics.BroadcasterSlowClientsEvicted.Inc()
		b.handleUnregister(conn)
	}
}

func (b *Broadcaster) handleStop() {
	total := len(b.clients)
	slog.Info("Broadcaster shutting down", "total_clients", total)
	b.closeAllClients("Server shutting down")
	slog.Info("Broadcaster shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes all client connections with the given reason.
func (b *Broadcaster) closeAllClients(reason string) {
	for conn, cw := range b.clients {
		cw.stopGraceful(reason)
		delete(b.clients, conn)
	}
	metrics.BroadcasterConnectedClients.Set(0)
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: payload})
}

// metricEvent keeps arbitrary ephemeral names out of metric labels.
func metricEvent(event string) string {
	if domain.IsReservedEvent(event) {
		return event
	}
	return "ephemeral"
}
