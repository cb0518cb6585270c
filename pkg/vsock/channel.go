package vsock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/agentcage/pkg/log"
	"github.com/cuemby/agentcage/pkg/types"
)

// PayloadHandler executes a payload locally (local mode) and returns the
// result, or an error if execution failed before a result could be formed.
type PayloadHandler func(ctx context.Context, p types.TaskPayload) (types.TaskResult, error)

// Transport sends a raw encoded frame to the remote sandbox in wire mode.
// The channel itself does not own the socket; it is handed one.
type Transport interface {
	WriteFrame(frame []byte) error
}

// Stats tracks channel-level counters.
type Stats struct {
	Sent     int
	Received int
	Errors   int
}

// Channel is a framed multiplexer operating in local or wire mode.
type Channel struct {
	mu        sync.Mutex
	connected bool
	transport Transport
	handler   PayloadHandler
	pending   map[string]chan types.TaskResult
	// retained holds results delivered before their receive() call arrived,
	// so a later receive for the same taskId still succeeds.
	retained  map[string]types.TaskResult
	stats     Stats
}

// NewChannel returns a disconnected Channel.
func NewChannel() *Channel {
	return &Channel{
		pending:  make(map[string]chan types.TaskResult),
		retained: make(map[string]types.TaskResult),
	}
}

// OnPayload registers the local-mode handler.
func (c *Channel) OnPayload(h PayloadHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect attaches a wire transport and marks the channel connected. Pass
// nil to operate purely in local mode.
func (c *Channel) Connect(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
	c.connected = true
}

// Disconnect marks the channel disconnected and rejects every pending
// receive with ErrChannelDisconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan types.TaskResult)
	c.connected = false
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

// Send serializes and delivers a payload over the wire transport. Fails
// with ErrNotConnected before Connect.
func (c *Channel) Send(p types.TaskPayload) error {
	c.mu.Lock()
	if !c.connected || c.transport == nil {
		c.mu.Unlock()
		return types.ErrNotConnected
	}
	transport := c.transport
	c.mu.Unlock()

	frame, err := SerializePayload(p)
	if err != nil {
		c.incErrors()
		return err
	}
	if err := transport.WriteFrame(frame); err != nil {
		c.incErrors()
		return fmt.Errorf("write frame: %w", err)
	}
	c.incSent()
	return nil
}

// Deliver is called by the wire reader loop when a RESULT frame arrives;
// it routes the result to a waiting Receive call, or retains it briefly
// if none is waiting yet (out-of-order delivery).
func (c *Channel) Deliver(result types.TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Received++
	if ch, ok := c.pending[result.TaskID]; ok {
		delete(c.pending, result.TaskID)
		ch <- result
		close(ch)
		return
	}
	c.retained[result.TaskID] = result
}

// Receive awaits a result for taskID, either already retained or
// delivered while waiting, up to timeout.
func (c *Channel) Receive(ctx context.Context, taskID string, timeout time.Duration) (types.TaskResult, error) {
	c.mu.Lock()
	if result, ok := c.retained[taskID]; ok {
		delete(c.retained, taskID)
		c.mu.Unlock()
		return result, nil
	}
	if !c.connected {
		c.mu.Unlock()
		return types.TaskResult{}, types.ErrNotConnected
	}
	ch := make(chan types.TaskResult, 1)
	c.pending[taskID] = ch
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result, ok := <-ch:
		if !ok {
			return types.TaskResult{}, types.ErrChannelDisconnected
		}
		return result, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, taskID)
		c.mu.Unlock()
		return types.TaskResult{}, types.ErrTimeout
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, taskID)
		c.mu.Unlock()
		return types.TaskResult{}, ctx.Err()
	}
}

// Execute runs a payload to completion: in local mode it calls the
// registered handler directly, bypassing the wire; in wire mode it sends
// then awaits the correlated result.
func (c *Channel) Execute(ctx context.Context, p types.TaskPayload, timeout time.Duration) (types.TaskResult, error) {
	c.mu.Lock()
	handler := c.handler
	connected := c.connected
	c.mu.Unlock()

	if handler != nil && !connected {
		result, err := handler(ctx, p)
		if err != nil {
			c.incErrors()
			log.WithComponent("vsock").Error().Err(err).Str("task_id", p.TaskID).Msg("local handler failed")
			return types.TaskResult{TaskID: p.TaskID, Success: false, Error: err.Error()}, nil
		}
		return result, nil
	}

	if handler != nil {
		result, err := handler(ctx, p)
		if err == nil {
			return result, nil
		}
		c.incErrors()
	}

	if err := c.Send(p); err != nil {
		return types.TaskResult{}, err
	}
	return c.Receive(ctx, p.TaskID, timeout)
}

func (c *Channel) incSent() {
	c.mu.Lock()
	c.stats.Sent++
	c.mu.Unlock()
}

func (c *Channel) incErrors() {
	c.mu.Lock()
	c.stats.Errors++
	c.mu.Unlock()
}

// Stats returns a snapshot of the channel's counters.
func (c *Channel) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
