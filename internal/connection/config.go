package connection

import "time"

// Config carries the lifecycle tunables, populated from the bluetooth
// section of config.yaml.
type Config struct {
	// PairingTimeout is the default window for a pairing handshake when
	// the caller does not supply one.
	PairingTimeout time.Duration

	// InitialDelay is the backoff delay after the first retryable
	// connect failure.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// QuietPeriod is the failure-free interval after which the backoff
	// exponent resets.
	QuietPeriod time.Duration

	// Cooldown is the fixed pause before reconnecting after a graceful
	// disconnect of a connected device.
	Cooldown time.Duration

	// PowerDebounce is how long a non-operable power state must persist
	// before supervised connections are torn down.
	PowerDebounce time.Duration
}

// withDefaults fills zero fields with working values so a partially
// populated config (common in tests) behaves sanely.
func (c Config) withDefaults() Config {
	if c.PairingTimeout <= 0 {
		c.PairingTimeout = 15 * time.Second
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = 2 * time.Minute
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = 5 * time.Minute
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	if c.PowerDebounce < 0 {
		c.PowerDebounce = 0
	}
	return c
}
