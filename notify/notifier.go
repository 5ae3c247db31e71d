package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"index_risk_sentinel/logs"
)

// Notifier delivers a titled message to the operator.
type Notifier interface {
	Send(ctx context.Context, title, message string) error
}

// LogNotifier writes notifications to the log. It is used when no gateway is configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, title, message string) error {
	logs.WithFields(logs.Fields{"title": title}).Warn(message)
	return nil
}

// Dispatcher sends notifications in the background with exactly one retry.
// Callers never block on delivery. A Dispatcher holds no per-caller state and may be
// shared by several engines.
type Dispatcher struct {
	notifier   Notifier
	retryDelay time.Duration
	timeout    time.Duration
	wg         sync.WaitGroup
}

// DoneFunc runs after the final attempt of a notification with that attempt's error.
type DoneFunc func(title string, err error)

// NewDispatcher wraps a notifier. retryDelay is the pause before the single retry.
func NewDispatcher(n Notifier, retryDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		notifier:   n,
		retryDelay: retryDelay,
		timeout:    15 * time.Second,
	}
}

// Notify queues a notification and returns immediately.
func (d *Dispatcher) Notify(title, message string) {
	d.NotifyThen(title, message, nil)
}

// NotifyThen is Notify with a completion callback. done may be nil.
func (d *Dispatcher) NotifyThen(title, message string, done DoneFunc) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.attempt(title, message)
		if err != nil {
			logs.Warnf("[Notify] Delivery of '%s' failed: %v. Retrying in %s.", title, err, d.retryDelay)
			time.Sleep(d.retryDelay)
			err = d.attempt(retryTitle(title), message)
			if err != nil {
				logs.Errorf("[Notify] Retry of '%s' failed: %v. Giving up.", title, err)
			}
		}
		if done != nil {
			done(title, err)
		}
	}()
}

func (d *Dispatcher) attempt(title, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.notifier.Send(ctx, title, message)
}

func retryTitle(title string) string {
	if strings.HasPrefix(title, "RETRY: ") {
		return title
	}
	return "RETRY: " + title
}

// Wait blocks until every queued notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
