package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/blelink/link"
)

var (
	// ErrLinkDown is returned by Send when no peer is linked.
	ErrLinkDown = errors.New("link down")
	// ErrQueueFull is returned by Send when the outbound queue is full.
	ErrQueueFull = errors.New("outbound queue full")
)

// Link is the part of link.Driver the bridge drives.
type Link interface {
	IsConnected(ctx context.Context) bool
	IsNewConnection() bool
	HasBytes(n int) bool
	TokenPending() bool
	Payload() []byte
	RemoveBytes(n int) error
	Write(p []byte) (int, error)
	State() link.State
}

// EventSink is notified from the poll loop. Implementations must not block.
type EventSink interface {
	LinkChanged(status Status)
	PayloadReceived(p []byte)
}

// Status is the link as seen by the bridge.
type Status struct {
	link.State
	// Connected is what the driver reported on the last poll. It can be
	// true while Linked is false when payload sits at the head of the
	// stream.
	Connected  bool      `json:"connected"`
	RxBytes    uint64    `json:"rx_bytes"`
	TxBytes    uint64    `json:"tx_bytes"`
	LastChange time.Time `json:"last_change"`
}

// Bridge owns a Link and polls it from a single goroutine. Other goroutines
// read a snapshot of the status and queue outbound payloads.
type Bridge struct {
	link     Link
	logger   *slog.Logger
	interval time.Duration
	outbound chan []byte
	sinks    []EventSink

	mu     sync.RWMutex
	status Status
}

// NewBridge creates a Bridge polling l every interval with an outbound queue
// of queueSize payloads.
func NewBridge(l Link, logger *slog.Logger, interval time.Duration, queueSize int) *Bridge {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Bridge{
		link:     l,
		logger:   logger,
		interval: interval,
		outbound: make(chan []byte, queueSize),
	}
}

// AddSink registers s for link events. Call before Run.
func (b *Bridge) AddSink(s EventSink) {
	b.sinks = append(b.sinks, s)
}

// Run polls the link until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		b.Poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one tick: link check, inbound payload, outbound queue.
func (b *Bridge) Poll(ctx context.Context) {
	connected := b.link.IsConnected(ctx)
	if b.link.IsNewConnection() {
		b.logger.Info("Peer connected")
	}

	var rx, tx int
	if connected {
		rx = b.receive()
		tx = b.flush()
	}

	b.update(connected, rx, tx)
}

func (b *Bridge) receive() int {
	if !b.link.HasBytes(1) {
		return 0
	}
	// A token split across ticks is finished by a later poll.
	if b.link.TokenPending() {
		return 0
	}

	p := bytes.Clone(b.link.Payload())
	if len(p) == 0 {
		return 0
	}
	if err := b.link.RemoveBytes(len(p)); err != nil {
		b.logger.Error("Failed to consume payload", "error", err)
		return 0
	}

	b.logger.Debug("Payload received", "length", len(p), "data", fmt.Sprintf("% X", p))
	for _, s := range b.sinks {
		s.PayloadReceived(p)
	}
	return len(p)
}

func (b *Bridge) flush() int {
	total := 0
	for {
		select {
		case p := <-b.outbound:
			n, err := b.link.Write(p)
			if err != nil {
				b.logger.Warn("Dropped outbound payload", "length", len(p), "error", err)
				continue
			}
			b.logger.Debug("Payload sent", "length", n, "data", fmt.Sprintf("% X", p[:n]))
			total += n
		default:
			return total
		}
	}
}

func (b *Bridge) update(connected bool, rx, tx int) {
	state := b.link.State()

	b.mu.Lock()
	changed := state != b.status.State || connected != b.status.Connected
	b.status.State = state
	b.status.Connected = connected
	b.status.RxBytes += uint64(rx)
	b.status.TxBytes += uint64(tx)
	if changed {
		b.status.LastChange = time.Now()
	}
	snapshot := b.status
	b.mu.Unlock()

	if !changed {
		return
	}
	b.logger.Info("Link state changed",
		"linked", state.Linked,
		"initialized", state.Initialized,
		"connected", connected,
	)
	for _, s := range b.sinks {
		s.LinkChanged(snapshot)
	}
}

// Snapshot returns the status of the last poll.
func (b *Bridge) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Send queues p for the peer. It never blocks.
func (b *Bridge) Send(p []byte) error {
	if !b.Snapshot().Linked {
		return ErrLinkDown
	}
	select {
	case b.outbound <- bytes.Clone(p):
		return nil
	default:
		return ErrQueueFull
	}
}
