package connection

import (
	"context"
	"sync"
)

// requestKind discriminates dispatcher loop requests.
type requestKind int

const (
	reqConnect requestKind = iota
	reqCancel
	reqRemove
	reqClear
	reqNotifyDisconnect
	reqIsConnected
	reqActiveIDs
	reqShutdown
)

// request is one message into the dispatcher's serialized loop.
type request struct {
	kind       requestKind
	deviceID   string
	supervisor *Supervisor
	generation uint64
	disconnect bool

	// Reply channels, set per kind.
	doneReply  chan (<-chan struct{})
	boolReply  chan bool
	idsReply   chan []string
}

// supervisorTask is the dispatcher's bookkeeping for one running supervisor.
type supervisorTask struct {
	sup        *Supervisor
	cancel     context.CancelFunc
	done       chan struct{}
	generation uint64
}

// Dispatcher serializes connect/cancel requests from arbitrary callers into
// a single consumer loop, guaranteeing at most one supervisor task per
// device id at any instant.
//
// The bookkeeping map is mutated only from within the loop goroutine, so it
// needs no locking. Completions carry generation tokens: a stale completion
// racing a newer start for the same id cannot clear the newer entry.
type Dispatcher struct {
	log Logger

	requests chan request

	// Loop-owned state.
	tasks      map[string]*supervisorTask
	generation uint64

	loopDone  chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// closedCompletion is handed out when there is nothing to wait for.
var closedCompletion = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewDispatcher creates a dispatcher. Call Start before use.
func NewDispatcher(log Logger) *Dispatcher {
	if log == nil {
		log = noopLogger{}
	}
	return &Dispatcher{
		log:      log,
		requests: make(chan request, 16),
		tasks:    make(map[string]*supervisorTask),
		loopDone: make(chan struct{}),
	}
}

// Start launches the consumer loop.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.loop()
	})
}

// Close cancels every running supervisor, waits for each to exit, and stops
// the loop. Idempotent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		if d.enqueue(request{kind: reqShutdown}) {
			<-d.loopDone
		}
	})
}

// Connect starts a supervisor task for the device unless one is already
// running, in which case the request is a safe no-op, not an error.
// Requests for a single device id are FIFO with respect to each other.
func (d *Dispatcher) Connect(sup *Supervisor) {
	d.enqueue(request{kind: reqConnect, deviceID: sup.DeviceID(), supervisor: sup})
}

// Cancel cancels the running supervisor task for the id, if any, and
// returns a channel that closes once the task has fully exited (immediately
// if none was running). Callers must drain it before issuing a new connect
// for the same id: the peripheral handle is only released at task exit.
func (d *Dispatcher) Cancel(deviceID string) <-chan struct{} {
	reply := make(chan (<-chan struct{}), 1)
	if !d.enqueue(request{kind: reqCancel, deviceID: deviceID, doneReply: reply}) {
		return closedCompletion
	}
	select {
	case ch := <-reply:
		return ch
	case <-d.loopDone:
		return closedCompletion
	}
}

// Remove cancels the task like Cancel but first marks the supervisor as
// removed, suppressing reconnection and, when disconnect is true, issuing a
// transport disconnect before the task exits.
func (d *Dispatcher) Remove(deviceID string, disconnect bool) <-chan struct{} {
	reply := make(chan (<-chan struct{}), 1)
	if !d.enqueue(request{kind: reqRemove, deviceID: deviceID, disconnect: disconnect, doneReply: reply}) {
		return closedCompletion
	}
	select {
	case ch := <-reply:
		return ch
	case <-d.loopDone:
		return closedCompletion
	}
}

// NotifyDisconnect routes a transport disconnect notification to the
// running supervisor for the id, if any.
func (d *Dispatcher) NotifyDisconnect(deviceID string) {
	d.enqueue(request{kind: reqNotifyDisconnect, deviceID: deviceID})
}

// IsConnected reports whether a running supervisor holds an up link for the
// id. False when no task is running or the dispatcher is closed.
func (d *Dispatcher) IsConnected(deviceID string) bool {
	reply := make(chan bool, 1)
	if !d.enqueue(request{kind: reqIsConnected, deviceID: deviceID, boolReply: reply}) {
		return false
	}
	select {
	case v := <-reply:
		return v
	case <-d.loopDone:
		return false
	}
}

// ActiveIDs returns the ids of all running supervisor tasks.
func (d *Dispatcher) ActiveIDs() []string {
	reply := make(chan []string, 1)
	if !d.enqueue(request{kind: reqActiveIDs, idsReply: reply}) {
		return nil
	}
	select {
	case ids := <-reply:
		return ids
	case <-d.loopDone:
		return nil
	}
}

// enqueue submits a request unless the loop has stopped.
func (d *Dispatcher) enqueue(req request) bool {
	select {
	case d.requests <- req:
		return true
	case <-d.loopDone:
		return false
	}
}

// loop is the single consumer. All task bookkeeping happens here.
func (d *Dispatcher) loop() {
	defer close(d.loopDone)

	for req := range d.requests {
		switch req.kind {
		case reqConnect:
			d.handleConnect(req)

		case reqCancel:
			req.doneReply <- d.teardown(req.deviceID)

		case reqRemove:
			if t, ok := d.tasks[req.deviceID]; ok {
				t.sup.NotifyRemoved(req.disconnect)
			}
			req.doneReply <- d.teardown(req.deviceID)

		case reqClear:
			if t, ok := d.tasks[req.deviceID]; ok && t.generation == req.generation {
				delete(d.tasks, req.deviceID)
			}

		case reqNotifyDisconnect:
			if t, ok := d.tasks[req.deviceID]; ok {
				t.sup.NotifyDisconnected()
			}

		case reqIsConnected:
			t, ok := d.tasks[req.deviceID]
			req.boolReply <- ok && t.sup.IsConnected()

		case reqActiveIDs:
			ids := make([]string, 0, len(d.tasks))
			for id := range d.tasks {
				ids = append(ids, id)
			}
			req.idsReply <- ids

		case reqShutdown:
			d.shutdown()
			return
		}
	}
}

// handleConnect starts a task for the id unless one is live.
func (d *Dispatcher) handleConnect(req request) {
	id := req.deviceID
	if _, exists := d.tasks[id]; exists {
		d.log.Debug("connect ignored, supervisor already running", "device_id", id)
		return
	}

	d.generation++
	gen := d.generation

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.tasks[id] = &supervisorTask{
		sup:        req.supervisor,
		cancel:     cancel,
		done:       done,
		generation: gen,
	}

	d.log.Debug("supervisor started", "device_id", id, "generation", gen)

	go func() {
		req.supervisor.Run(ctx)
		cancel()
		close(done)
		// Clear our bookkeeping entry, guarded by generation so a stale
		// completion cannot clobber a newer start.
		select {
		case d.requests <- request{kind: reqClear, deviceID: id, generation: gen}:
		case <-d.loopDone:
		}
	}()
}

// teardown cancels and forgets the task for the id, returning its
// completion channel.
func (d *Dispatcher) teardown(deviceID string) <-chan struct{} {
	t, ok := d.tasks[deviceID]
	if !ok {
		return closedCompletion
	}
	t.cancel()
	delete(d.tasks, deviceID)
	return t.done
}

// shutdown cancels all tasks and waits for each to exit.
func (d *Dispatcher) shutdown() {
	for id, t := range d.tasks {
		t.cancel()
		d.log.Debug("supervisor cancelled for shutdown", "device_id", id)
	}
	for _, t := range d.tasks {
		<-t.done
	}
	d.tasks = make(map[string]*supervisorTask)
}
