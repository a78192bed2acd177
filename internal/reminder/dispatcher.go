package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	defaultWorkers     = 4
	defaultSendTimeout = 15 * time.Second
)

// Recipients lists the chat ids reminders go to.
type Recipients interface {
	RecipientIDs(ctx context.Context) ([]string, error)
}

// Delivery summarizes the fan-out of one reminder.
type Delivery struct {
	Recipients int
	Sent       int
	Failed     int
}

// Dispatcher sends each published reminder to every registered user. Sends
// run on a bounded worker pool and a failed recipient never blocks the others.
type Dispatcher struct {
	recipients Recipients
	pool       *ants.Pool
	timeout    time.Duration

	mu       sync.RWMutex
	notifier Notifier

	sent   atomic.Int64
	failed atomic.Int64
}

func NewDispatcher(recipients Recipients, notifier Notifier, workers int, timeout time.Duration) (*Dispatcher, error) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		recipients: recipients,
		notifier:   notifier,
		pool:       pool,
		timeout:    timeout,
	}, nil
}

// SetNotifier swaps the transport, e.g. once the chat client is connected.
func (d *Dispatcher) SetNotifier(n Notifier) {
	if n == nil {
		n = LogNotifier{}
	}
	d.mu.Lock()
	d.notifier = n
	d.mu.Unlock()
}

func (d *Dispatcher) currentNotifier() Notifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notifier
}

// Subscribe registers the dispatcher on the reminder topic.
func (d *Dispatcher) Subscribe(bus EventBus.Bus) error {
	return bus.Subscribe(TopicReminder, d.handle)
}

func (d *Dispatcher) handle(ctx context.Context, r Reminder) {
	d.Deliver(ctx, r)
}

// Deliver sends r to every recipient and waits for all sends to finish.
func (d *Dispatcher) Deliver(ctx context.Context, r Reminder) Delivery {
	if ctx == nil {
		ctx = context.Background()
	}
	var res Delivery
	ids, err := d.recipients.RecipientIDs(ctx)
	if err != nil {
		zap.L().Error("load reminder recipients failed",
			zap.String("kind", string(r.Kind)),
			zap.Int64("medicine_id", r.MedicineID),
			zap.Error(err))
		return res
	}
	if len(ids) == 0 {
		zap.L().Info("no registered users, reminder not sent",
			zap.String("kind", string(r.Kind)),
			zap.String("medicine", r.MedicineName))
		return res
	}
	res.Recipients = len(ids)

	notifier := d.currentNotifier()
	var sent, failed atomic.Int64
	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if err := recover(); err != nil {
					failed.Add(1)
					zap.S().Error("reminder send panic:", err)
				}
			}()
			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			if err := notifier.SendText(sctx, id, r.Text); err != nil {
				failed.Add(1)
				zap.L().Error("reminder send failed",
					zap.String("recipient", id),
					zap.String("medicine", r.MedicineName),
					zap.Error(err))
				return
			}
			sent.Add(1)
			zap.L().Info("reminder sent",
				zap.String("recipient", id),
				zap.String("kind", string(r.Kind)),
				zap.String("medicine", r.MedicineName))
		}
		if err := d.pool.Submit(task); err != nil {
			wg.Done()
			failed.Add(1)
			zap.L().Error("reminder send not scheduled", zap.String("recipient", id), zap.Error(err))
		}
	}
	wg.Wait()

	res.Sent = int(sent.Load())
	res.Failed = int(failed.Load())
	d.sent.Add(int64(res.Sent))
	d.failed.Add(int64(res.Failed))
	return res
}

// Stats returns the total sent and failed sends since start.
func (d *Dispatcher) Stats() (sent, failed int64) {
	return d.sent.Load(), d.failed.Load()
}

func (d *Dispatcher) Release() {
	d.pool.Release()
}
