package status

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wearlink/wearlink-core/internal/infrastructure/mqtt"
)

// HealthReporter publishes the daemon health topic at regular intervals.
//
// The paired-device count and radio state are sampled through callbacks at
// publish time, so the reporter never caches stale figures.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	topics    mqtt.Topics

	// pairedCount and radioState sample current figures; either may be nil.
	pairedCount func() int
	radioState  func() string

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	log Logger
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the daemon software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher Publisher

	// PairedCount samples the number of paired devices.
	PairedCount func() int

	// RadioState samples the adapter power state.
	RadioState func() string

	// Logger is optional.
	Logger Logger
}

// NewHealthReporter creates a health reporter.
// Call Start to begin reporting and Stop to shut down.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}
	return &HealthReporter{
		version:     cfg.Version,
		startTime:   time.Now(),
		interval:    interval,
		publisher:   cfg.Publisher,
		pairedCount: cfg.PairedCount,
		radioState:  cfg.RadioState,
		done:        make(chan struct{}),
		log:         log,
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best-effort, nothing to do if the broker is already gone.
		_ = h.publish(HealthStopping, "")
	})
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	state, reason := h.determineState()
	return h.publish(state, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.log.Warn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.log.Warn("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) determineState() (HealthState, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "mqtt disconnected"
	}
	if h.radioState != nil && h.radioState() != "powered_on" {
		return HealthDegraded, "radio not operable"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publish(state HealthState, reason string) error {
	if h.publisher == nil {
		return nil
	}

	msg := HealthMessage{
		Status:        state,
		Reason:        reason,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		RadioState:    "unknown",
		Timestamp:     time.Now().UTC(),
	}
	if h.pairedCount != nil {
		msg.PairedDevices = h.pairedCount()
	}
	if h.radioState != nil {
		msg.RadioState = h.radioState()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topics.SystemHealth(), payload, statusQoS, true)
}
