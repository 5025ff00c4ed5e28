package mqtt

import (
	"errors"
	"testing"
)

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Publish("test/topic", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("test/topic", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Publish("test/topic", []byte("test"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeEmptyTopic(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Subscribe("test/topic", 3, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Subscribe("test/topic", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Subscribe("test/topic", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

// =============================================================================
// State Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestSubscriptionCount_Empty(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestHasSubscription_NotSubscribed(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.HasSubscription("nonexistent/topic") {
		t.Error("HasSubscription() should be false for unsubscribed topic")
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "DeviceConnection",
			builder: func() string {
				return Topics{}.DeviceConnection("watch-a1b2")
			},
			expected: "wearlink/core/device/watch-a1b2/connection",
		},
		{
			name: "DeviceBattery",
			builder: func() string {
				return Topics{}.DeviceBattery("scale-c3d4")
			},
			expected: "wearlink/core/device/scale-c3d4/battery",
		},
		{
			name: "DeviceForget",
			builder: func() string {
				return Topics{}.DeviceForget("watch-a1b2")
			},
			expected: "wearlink/core/device/watch-a1b2/forget",
		},
		{
			name: "DevicePaired",
			builder: func() string {
				return Topics{}.DevicePaired("thermo-e5f6")
			},
			expected: "wearlink/core/device/thermo-e5f6/paired",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "wearlink/system/status",
		},
		{
			name: "SystemHealth",
			builder: func() string {
				return Topics{}.SystemHealth()
			},
			expected: "wearlink/system/health",
		},
		{
			name: "AllDeviceForgets",
			builder: func() string {
				return Topics{}.AllDeviceForgets()
			},
			expected: "wearlink/core/device/+/forget",
		},
		{
			name: "AllDeviceConnections",
			builder: func() string {
				return Topics{}.AllDeviceConnections()
			},
			expected: "wearlink/core/device/+/connection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}
