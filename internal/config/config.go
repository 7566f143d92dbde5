// Package config centralizes liftd's flag defaults and validation, the
// role daemon/cmd/dplaned/schema.go plays for that daemon's DB schema
// constants.
package config

import (
	"fmt"
	"time"

	"liftd/internal/transport"
)

// Config is the fully-resolved set of parameters cmd/liftd wires the
// rest of the system from.
type Config struct {
	Floors int

	ConfigDir string // where the persisted node id lives

	BroadcastPort int
	PresencePort  int

	PollInterval     time.Duration
	AnnounceInterval time.Duration
	DoorTimeout      time.Duration
	StuckTimeout     time.Duration

	HTTPListenAddr string
	EventLogPath   string
}

// Defaults returns the baseline configuration, matching §6.2's suggested
// ports and §3/§4.6's suggested timer durations.
func Defaults() Config {
	return Config{
		Floors:           4,
		ConfigDir:        "/etc/liftd",
		BroadcastPort:    transport.DefaultBroadcastPort,
		PresencePort:     transport.DefaultPresencePort,
		PollInterval:     20 * time.Millisecond,
		AnnounceInterval: 200 * time.Millisecond,
		DoorTimeout:      2 * time.Second,
		StuckTimeout:     5 * time.Second,
		HTTPListenAddr:   "127.0.0.1:9000",
		EventLogPath:     "/var/lib/liftd/eventlog.db",
	}
}

// Validate rejects configurations that would produce an unusable or
// ill-defined RequestTable or timer set.
func (c Config) Validate() error {
	if c.Floors < 2 {
		return fmt.Errorf("config: floors must be >= 2 (got %d): a single floor has no legal hall calls", c.Floors)
	}
	if c.BroadcastPort <= 0 || c.BroadcastPort > 65535 {
		return fmt.Errorf("config: broadcast port out of range: %d", c.BroadcastPort)
	}
	if c.PresencePort <= 0 || c.PresencePort > 65535 {
		return fmt.Errorf("config: presence port out of range: %d", c.PresencePort)
	}
	if c.BroadcastPort == c.PresencePort {
		return fmt.Errorf("config: broadcast and presence ports must differ (both %d)", c.BroadcastPort)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive")
	}
	if c.AnnounceInterval <= 0 {
		return fmt.Errorf("config: announce interval must be positive")
	}
	if c.DoorTimeout <= 0 {
		return fmt.Errorf("config: door timeout must be positive")
	}
	if c.StuckTimeout <= c.PollInterval {
		return fmt.Errorf("config: stuck timeout (%s) must exceed the poll interval (%s)", c.StuckTimeout, c.PollInterval)
	}
	return nil
}
