package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command Metrics
var (
	// CommandsTotal tracks state commands by command name and result
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_commands_total",
			Help: "Total state commands by command and result (applied/noop/rejected)",
		},
		[]string{"command", "result"},
	)

	// CommandDuration tracks how long a command spends inside the state owner
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "state_command_duration_seconds",
			Help:    "Time spent applying a state command in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"command"},
	)

	// StateRevision tracks the revision of the in-memory document
	StateRevision = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "state_revision",
			Help: "Current revision of the in-memory overlay document",
		},
	)

	// DonationsCurrent tracks the size of the donation ledger
	DonationsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "donations_current",
			Help: "Number of donations in the ledger",
		},
	)
)

// Store Metrics
var (
	// StoreSavesTotal tracks document writes by backend and result
	StoreSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_saves_total",
			Help: "Total document saves by backend and result (success/error/skipped)",
		},
		[]string{"backend", "result"},
	)

	// StoreSaveDuration tracks document write latency by backend
	StoreSaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_save_duration_seconds",
			Help:    "Document save duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend"},
	)

	// StoreLoadsTotal tracks where the startup document came from
	StoreLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_loads_total",
			Help: "Total document loads by source (remote/local/defaults)",
		},
		[]string{"source"},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Broadcaster Metrics
var (
	// BroadcasterConnectedClients tracks total number of connected WebSocket clients
	BroadcasterConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcaster_connected_clients_total",
			Help: "Total number of connected display clients",
		},
	)

	// BroadcasterMessagesTotal tracks fan-out messages by event name
	BroadcasterMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcaster_messages_total",
			Help: "Total broadcast messages fanned out by event kind",
		},
		[]string{"event"},
	)

	// BroadcasterStaleUpdatesTotal tracks published states older than the latest one
	BroadcasterStaleUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_stale_updates_total",
			Help: "Published states dropped because a newer revision was already sent",
		},
	)

	// BroadcasterSlowClientsEvicted tracks number of slow clients evicted
	BroadcasterSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_slow_clients_evicted_total",
			Help: "Total number of slow WebSocket clients evicted due to buffer full",
		},
	)

	// BroadcasterPanicsTotal tracks broadcaster panic recoveries
	BroadcasterPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_panics_total",
			Help: "Total broadcaster panic recoveries",
		},
	)

	// BroadcasterCommandChannelDepth tracks current command channel depth
	BroadcasterCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcaster_command_channel_depth",
			Help: "Current command channel depth",
		},
	)

	// BroadcasterStopTimeoutsTotal tracks broadcaster stops that exceeded timeout
	BroadcasterStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_stop_timeouts_total",
			Help: "Broadcaster stops that exceeded timeout",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks current active WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// WebSocketConnectionsTotal tracks total WebSocket connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (success/error/rejected)",
		},
		[]string{"result"},
	)

	// WebSocketMessageSendDuration tracks WebSocket message send duration
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketConnectionDuration tracks WebSocket connection duration
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/ip_limit/global_limit)",
		},
		[]string{"reason"},
	)

	// WebSocketConnectionCapacity tracks current connection capacity utilization as percentage
	WebSocketConnectionCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connection_capacity_percent",
			Help: "Current WebSocket connection capacity utilization (0-100%)",
		},
	)

	// WebSocketUniqueIPs tracks number of unique IP addresses with active connections
	WebSocketUniqueIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_unique_ips",
			Help: "Number of unique IP addresses with active WebSocket connections",
		},
	)

	// WebSocketInboundMessagesTotal tracks messages received from display clients by outcome
	WebSocketInboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_inbound_messages_total",
			Help: "Messages received from WebSocket clients by outcome (relayed/ignored/invalid)",
		},
		[]string{"outcome"},
	)
)

// Auth Metrics
var (
	// LoginAttemptsTotal tracks login attempts by requested role and result
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Login attempts by role and result (success/failure/invalid)",
		},
		[]string{"role", "result"},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks database query duration by query name
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)

	// DBErrorsTotal tracks database errors by query name
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total database errors by query",
		},
		[]string{"query"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Error Metrics
// Note: http_errors_total{type} is provided by internal/errors package
