package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State of a channel's circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Settings tune the breaker. One Settings applies to every channel in a
// registry.
type Settings struct {
	// FailureThreshold is the number of consecutive transient failures
	// that opens the circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit waits before allowing a probe.
	Cooldown time.Duration
	// MaxCooldown caps cooldown growth after repeated failed probes.
	MaxCooldown time.Duration
	// ProbeSuccesses is the number of consecutive successful probes in
	// half-open required to close the circuit again.
	ProbeSuccesses int
}

// DefaultSettings mirror the configuration defaults.
var DefaultSettings = Settings{
	FailureThreshold: 5,
	Cooldown:         2 * time.Minute,
	MaxCooldown:      30 * time.Minute,
	ProbeSuccesses:   2,
}

// Snapshot is a read-only view of one channel's circuit, consumed by
// the health reporter.
type Snapshot struct {
	Channel             string     `json:"channel"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	ProbeInFlight       bool       `json:"probe_in_flight"`
}

type channelCircuit struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureAt        time.Time
	openedAt             time.Time
	cooldown             time.Duration
	probeInFlight        bool
}

// Registry holds one circuit per delivery channel. It is shared by all
// delivery workers in a process; a single mutex guards every transition
// so two workers can never independently flip the same circuit.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	circuits map[string]*channelCircuit
	logger   *slog.Logger
	nowFn    func() time.Time

	// onStateChange, when set, receives every transition. Used to drive
	// the operator-visible prometheus gauge.
	onStateChange func(channel string, state State)
}

// NewRegistry creates a breaker registry.
func NewRegistry(settings Settings, logger *slog.Logger) *Registry {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = DefaultSettings.FailureThreshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = DefaultSettings.Cooldown
	}
	if settings.MaxCooldown < settings.Cooldown {
		settings.MaxCooldown = DefaultSettings.MaxCooldown
	}
	if settings.ProbeSuccesses <= 0 {
		settings.ProbeSuccesses = 1
	}
	return &Registry{
		settings: settings,
		circuits: make(map[string]*channelCircuit),
		logger:   logger.With("component", "circuit_breaker"),
		nowFn:    time.Now,
	}
}

// OnStateChange registers a transition callback. Must be called before
// the registry is shared across goroutines.
func (r *Registry) OnStateChange(fn func(channel string, state State)) {
	r.onStateChange = fn
}

func (r *Registry) circuit(channel string) *channelCircuit {
	c, ok := r.circuits[channel]
	if !ok {
		c = &channelCircuit{state: StateClosed, cooldown: r.settings.Cooldown}
		r.circuits[channel] = c
	}
	return c
}

func (r *Registry) transition(channel string, c *channelCircuit, to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	r.logger.Warn("Circuit breaker state changed", "channel", channel, "from", from, "to", to)
	if r.onStateChange != nil {
		r.onStateChange(channel, to)
	}
}

// Allow reports whether a send on the channel may proceed. An open
// circuit fast-fails; after the cooldown it admits exactly one probe at
// a time (half-open).
func (r *Registry) Allow(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(channel)
	now := r.nowFn()

	switch c.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(c.openedAt) < c.cooldown {
			return false
		}
		r.transition(channel, c, StateHalfOpen)
		c.consecutiveSuccesses = 0
		c.probeInFlight = true
		return true
	case StateHalfOpen:
		if c.probeInFlight {
			return false
		}
		c.probeInFlight = true
		return true
	}
	return true
}

// ReportSuccess records a successful send attempt.
func (r *Registry) ReportSuccess(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(channel)
	switch c.state {
	case StateClosed:
		c.consecutiveFailures = 0
	case StateHalfOpen:
		c.probeInFlight = false
		c.consecutiveSuccesses++
		if c.consecutiveSuccesses >= r.settings.ProbeSuccesses {
			c.consecutiveFailures = 0
			c.consecutiveSuccesses = 0
			c.cooldown = r.settings.Cooldown
			r.transition(channel, c, StateClosed)
		}
	case StateOpen:
		// A success while open means an in-flight send outlived the
		// transition; the streak reset waits for a half-open probe.
	}
}

// ReportFailure records a transient send failure. Permanent delivery
// errors must not be reported here: an invalid recipient says nothing
// about provider health.
func (r *Registry) ReportFailure(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(channel)
	now := r.nowFn()
	c.lastFailureAt = now

	switch c.state {
	case StateClosed:
		c.consecutiveFailures++
		if c.consecutiveFailures >= r.settings.FailureThreshold {
			c.openedAt = now
			c.cooldown = r.settings.Cooldown
			r.transition(channel, c, StateOpen)
		}
	case StateHalfOpen:
		// Failed probe: reopen with a longer cooldown.
		c.probeInFlight = false
		c.consecutiveSuccesses = 0
		c.consecutiveFailures++
		c.openedAt = now
		c.cooldown = c.cooldown * 2
		if c.cooldown > r.settings.MaxCooldown {
			c.cooldown = r.settings.MaxCooldown
		}
		r.transition(channel, c, StateOpen)
	case StateOpen:
		c.consecutiveFailures++
	}
}

// SnapshotChannel returns the current view of one channel. A channel
// that never saw traffic reports a closed circuit.
func (r *Registry) SnapshotChannel(channel string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(channel, r.circuit(channel))
}

// Snapshots returns the current view of the given channels.
func (r *Registry) Snapshots(channels []string) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(channels))
	for _, ch := range channels {
		out = append(out, r.snapshotLocked(ch, r.circuit(ch)))
	}
	return out
}

func (r *Registry) snapshotLocked(channel string, c *channelCircuit) Snapshot {
	s := Snapshot{
		Channel:             channel,
		State:               c.state,
		ConsecutiveFailures: c.consecutiveFailures,
		ProbeInFlight:       c.probeInFlight,
	}
	if !c.lastFailureAt.IsZero() {
		ts := c.lastFailureAt
		s.LastFailureAt = &ts
	}
	if !c.openedAt.IsZero() && c.state != StateClosed {
		ts := c.openedAt
		s.OpenedAt = &ts
	}
	return s
}
