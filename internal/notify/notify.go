// Package notify delivers one-time codes to phones and mailboxes. Delivery is
// best effort: every failure, including timeouts and panics inside a driver,
// is reported as false and never as an error.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Channel is the kind of address a code is sent to.
type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelPhone || c == ChannelEmail
}

// Notifier sends a code to a single address on one channel.
type Notifier interface {
	Send(ctx context.Context, to, code string) bool
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, to, code string) bool

func (f NotifierFunc) Send(ctx context.Context, to, code string) bool { return f(ctx, to, code) }

// Recorder is an optional interface for recording delivery metrics.
type Recorder interface {
	ObserveDelivery(channel string, delivered bool, seconds float64)
}

// Dispatcher routes codes to the notifier registered for their channel and
// bounds every send by a timeout.
type Dispatcher struct {
	notifiers map[Channel]Notifier
	timeout   time.Duration
	metrics   Recorder
}

// NewDispatcher creates a Dispatcher with the given per-send timeout.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		notifiers: make(map[Channel]Notifier),
		timeout:   timeout,
	}
}

// Register sets the notifier used for ch.
func (d *Dispatcher) Register(ch Channel, n Notifier) *Dispatcher {
	d.notifiers[ch] = n
	return d
}

// SetMetrics sets the optional metrics recorder.
func (d *Dispatcher) SetMetrics(m Recorder) {
	d.metrics = m
}

// Deliver sends code to the address on channel ch. It returns within the
// dispatcher timeout even if the driver does not honour ctx.
func (d *Dispatcher) Deliver(ctx context.Context, ch Channel, to, code string) bool {
	start := time.Now()
	delivered := d.deliver(ctx, ch, to, code)
	if d.metrics != nil {
		d.metrics.ObserveDelivery(string(ch), delivered, time.Since(start).Seconds())
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, to, code string) bool {
	n, ok := d.notifiers[ch]
	if !ok {
		slog.Warn("no notifier registered for channel", "channel", ch)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("notifier panicked", "channel", ch, "panic", fmt.Sprint(p))
				result <- false
			}
		}()
		result <- n.Send(ctx, to, code)
	}()

	select {
	case ok := <-result:
		return ok
	case <-ctx.Done():
		slog.Warn("notifier timed out", "channel", ch, "timeout", d.timeout)
		return false
	}
}

// LogNotifier writes codes to the log instead of sending them. For local
// development only.
type LogNotifier struct {
	Channel Channel
}

func (l LogNotifier) Send(ctx context.Context, to, code string) bool {
	slog.Info("verification code", "channel", l.Channel, "to", to, "code", code)
	return true
}
