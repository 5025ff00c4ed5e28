package connection

import (
	"testing"
	"time"

	"github.com/wearlink/wearlink-core/internal/device"
)

func startDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(nil)
	d.Start()
	t.Cleanup(d.Close)
	return d
}

// blockedSupervisor builds a supervisor whose connect attempt blocks until
// the returned release func is called, keeping the task alive.
func blockedSupervisor(id string, central *fakeCentral, repo *memoryRepository) (*Supervisor, func()) {
	block := make(chan struct{})
	central.scriptConnect(connectResult{block: block})
	s := NewSupervisor(id, device.KindWatch, &fakePeripheral{id: id},
		central, repo, nil, testConfig(), nil)
	var released bool
	return s, func() {
		if !released {
			released = true
			close(block)
		}
	}
}

func TestDispatcherSingleTaskPerDevice(t *testing.T) {
	d := startDispatcher(t)
	central := newFakeCentral()
	repo := newMemoryRepository()
	repo.add(pairedRecord("AA:BB:CC:DD:EE:01"))

	sup, release := blockedSupervisor("AA:BB:CC:DD:EE:01", central, repo)
	defer release()

	d.Connect(sup)
	if !waitFor(time.Second, func() bool { return len(d.ActiveIDs()) == 1 }) {
		t.Fatal("task never started")
	}

	// A duplicate connect for a live id is a silent no-op.
	dup := NewSupervisor("AA:BB:CC:DD:EE:01", device.KindWatch, nil,
		central, repo, nil, testConfig(), nil)
	d.Connect(dup)

	if got := len(d.ActiveIDs()); got != 1 {
		t.Fatalf("active tasks = %d, want 1", got)
	}
	if got := central.connectCount(); got != 1 {
		t.Fatalf("connect calls = %d, duplicate must not start a second task", got)
	}
}

func TestDispatcherCancelAwaitsCompletion(t *testing.T) {
	d := startDispatcher(t)
	central := newFakeCentral()
	repo := newMemoryRepository()
	repo.add(pairedRecord("AA:BB:CC:DD:EE:01"))

	sup, release := blockedSupervisor("AA:BB:CC:DD:EE:01", central, repo)
	defer release()

	d.Connect(sup)
	if !waitFor(time.Second, func() bool { return len(d.ActiveIDs()) == 1 }) {
		t.Fatal("task never started")
	}

	done := d.Cancel("AA:BB:CC:DD:EE:01")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancel completion never closed")
	}
	if got := len(d.ActiveIDs()); got != 0 {
		t.Fatalf("active tasks after cancel = %d, want 0", got)
	}

	// The id is immediately reusable once the completion has closed.
	sup2, release2 := blockedSupervisor("AA:BB:CC:DD:EE:01", central, repo)
	defer release2()
	d.Connect(sup2)
	if !waitFor(time.Second, func() bool { return len(d.ActiveIDs()) == 1 }) {
		t.Fatal("task not restartable after cancel")
	}
}

func TestDispatcherCancelUnknownID(t *testing.T) {
	d := startDispatcher(t)
	select {
	case <-d.Cancel("AA:BB:CC:DD:EE:99"):
	case <-time.After(time.Second):
		t.Fatal("cancel of unknown id must complete immediately")
	}
}

func TestDispatcherRemoveSuppressesReconnect(t *testing.T) {
	d := startDispatcher(t)
	central := newFakeCentral()
	repo := newMemoryRepository()
	repo.add(pairedRecord("AA:BB:CC:DD:EE:01"))

	sup := NewSupervisor("AA:BB:CC:DD:EE:01", device.KindWatch,
		&fakePeripheral{id: "AA:BB:CC:DD:EE:01"}, central, repo, nil, testConfig(), nil)
	d.Connect(sup)

	if !waitFor(time.Second, func() bool { return d.IsConnected("AA:BB:CC:DD:EE:01") }) {
		t.Fatal("device never connected")
	}

	select {
	case <-d.Remove("AA:BB:CC:DD:EE:01", true):
	case <-time.After(time.Second):
		t.Fatal("remove completion never closed")
	}

	if d.IsConnected("AA:BB:CC:DD:EE:01") {
		t.Fatal("device still reported connected after removal")
	}
	if got := central.disconnectCount(); got != 1 {
		t.Fatalf("disconnects = %d, want 1", got)
	}
	if got := central.connectCount(); got != 1 {
		t.Fatalf("connect calls = %d, removal must not reconnect", got)
	}
}

func TestDispatcherNotifyDisconnect(t *testing.T) {
	d := startDispatcher(t)
	central := newFakeCentral()
	repo := newMemoryRepository()
	repo.add(pairedRecord("AA:BB:CC:DD:EE:01"))

	sup := NewSupervisor("AA:BB:CC:DD:EE:01", device.KindWatch,
		&fakePeripheral{id: "AA:BB:CC:DD:EE:01"}, central, repo, nil, testConfig(), nil)
	d.Connect(sup)

	if !waitFor(time.Second, func() bool { return d.IsConnected("AA:BB:CC:DD:EE:01") }) {
		t.Fatal("device never connected")
	}

	d.NotifyDisconnect("AA:BB:CC:DD:EE:01")
	if !waitFor(time.Second, func() bool { return central.connectCount() >= 2 }) {
		t.Fatal("supervisor did not reconnect after routed disconnect")
	}

	// Notifications for unknown ids are dropped, not errors.
	d.NotifyDisconnect("AA:BB:CC:DD:EE:99")
}

func TestDispatcherClose(t *testing.T) {
	d := NewDispatcher(nil)
	d.Start()

	central := newFakeCentral()
	repo := newMemoryRepository()
	repo.add(pairedRecord("AA:BB:CC:DD:EE:01"))
	repo.add(pairedRecord("AA:BB:CC:DD:EE:02"))

	sup1, release1 := blockedSupervisor("AA:BB:CC:DD:EE:01", central, repo)
	defer release1()
	sup2, release2 := blockedSupervisor("AA:BB:CC:DD:EE:02", central, repo)
	defer release2()
	d.Connect(sup1)
	d.Connect(sup2)

	if !waitFor(time.Second, func() bool { return len(d.ActiveIDs()) == 2 }) {
		t.Fatal("tasks never started")
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not complete")
	}

	// Post-close calls are safe no-ops.
	if d.IsConnected("AA:BB:CC:DD:EE:01") {
		t.Fatal("closed dispatcher reports connected")
	}
	if ids := d.ActiveIDs(); len(ids) != 0 {
		t.Fatalf("closed dispatcher reports active ids: %v", ids)
	}
	select {
	case <-d.Cancel("AA:BB:CC:DD:EE:01"):
	default:
		t.Fatal("cancel on closed dispatcher must return a closed completion")
	}
	d.Close()
}

func TestDispatcherStaleCompletionGeneration(t *testing.T) {
	d := startDispatcher(t)
	central := newFakeCentral()
	repo := newMemoryRepository()
	repo.add(pairedRecord("AA:BB:CC:DD:EE:01"))

	// Start, cancel, and immediately restart the same id. The first task's
	// completion races the second start; the generation token must protect
	// the new entry from being cleared by the old task.
	sup1, release1 := blockedSupervisor("AA:BB:CC:DD:EE:01", central, repo)
	d.Connect(sup1)
	if !waitFor(time.Second, func() bool { return len(d.ActiveIDs()) == 1 }) {
		t.Fatal("first task never started")
	}

	done := d.Cancel("AA:BB:CC:DD:EE:01")
	sup2, release2 := blockedSupervisor("AA:BB:CC:DD:EE:01", central, repo)
	defer release2()
	<-done
	d.Connect(sup2)
	release1()

	// Give the stale clear a chance to land; the live task must survive it.
	time.Sleep(20 * time.Millisecond)
	if got := len(d.ActiveIDs()); got != 1 {
		t.Fatalf("active tasks = %d, stale completion cleared the live task", got)
	}
}
