package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custody_settlement/logging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	EventDepositApproved     = "deposit.approved"
	EventDepositRejected     = "deposit.rejected"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalRejected  = "withdrawal.rejected"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventWithdrawalFailed    = "withdrawal.failed"
)

type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	UserID     string                 `json:"user_id"`
	Entity     string                 `json:"entity"`
	EntityID   string                 `json:"entity_id"`
	Currency   string                 `json:"currency"`
	Amount     string                 `json:"amount"`
	Status     string                 `json:"status"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Dispatcher delivers events after commit. Delivery errors are logged and
// never reach the caller.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	log       *logging.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(log *logging.Logger, timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifiers: notifiers, timeout: timeout, log: log}
}

func (d *Dispatcher) Dispatch(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.WithField("event", evt.Type).Warn("dispatcher closed, dropping notification")
		return
	}
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go d.deliver(n, evt)
	}
}

func (d *Dispatcher) deliver(n Notifier, evt Event) {
	defer d.wg.Done()
	fields := logrus.Fields{"event": evt.Type, "entity_id": evt.EntityID, "notifier": fmt.Sprintf("%T", n)}
	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(fields).Errorf("notifier panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := n.Notify(ctx, evt); err != nil {
		d.log.WithFields(fields).WithError(err).Warn("notification failed")
	}
}

// Close stops accepting events and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
