package reminder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/medsbot/internal/domain"
	"go.uber.org/zap"
)

// DefaultSpec runs the daily cycle at midnight.
const DefaultSpec = "0 0 * * *"

var ErrAlreadyStarted = errors.New("reminder scheduler already started")

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Store is the part of the ledger the checks read and mutate.
type Store interface {
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
	PrescriptionExpiries(ctx context.Context) (map[int64]time.Time, error)
	DecrementForDay(ctx context.Context, day time.Time) (int, bool, error)
	Today() time.Time
}

type Config struct {
	Spec                 string
	Location             *time.Location
	PrescriptionLeadDays int
	StockAlertDays       int
}

// Status describes the last and next cycle.
type Status struct {
	Spec        string    `json:"spec"`
	Started     bool      `json:"started"`
	Running     bool      `json:"running"`
	LastRunAt   time.Time `json:"last_run_at"`
	LastResult  string    `json:"last_result"`
	LastMessage string    `json:"last_message"`
	LastFired   int       `json:"last_fired"`
	NextRunAt   time.Time `json:"next_run_at"`
}

// CycleResult is the outcome of one prescription check plus stock check.
type CycleResult struct {
	Prescriptions []Reminder `json:"prescriptions"`
	Stock         []Reminder `json:"stock"`
}

func (r CycleResult) Fired() int {
	return len(r.Prescriptions) + len(r.Stock)
}

// Scheduler owns the daily reminder job. It is created once by the
// application and started once.
type Scheduler struct {
	store Store
	bus   EventBus.Bus
	cfg   Config
	cron  *cron.Cron

	mu      sync.Mutex
	started bool
	entryID cron.EntryID
	status  Status

	// serializes cycles so a manual run never overlaps the timer
	runMu sync.Mutex
}

func NewScheduler(store Store, bus EventBus.Bus, cfg Config) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PrescriptionLeadDays <= 0 {
		cfg.PrescriptionLeadDays = DefaultPrescriptionLeadDays
	}
	if cfg.StockAlertDays <= 0 {
		cfg.StockAlertDays = DefaultStockAlertDays
	}
	if _, err := cronParser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("reminder schedule %q: %w", cfg.Spec, err)
	}
	return &Scheduler{
		store:  store,
		bus:    bus,
		cfg:    cfg,
		cron:   cron.New(cron.WithLocation(cfg.Location), cron.WithParser(cronParser)),
		status: Status{Spec: cfg.Spec},
	}, nil
}

// Start registers the daily cycle and starts the timer. Scheduled cycles use
// ctx. A second call returns ErrAlreadyStarted.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		zap.L().Warn("reminder scheduler already started")
		return ErrAlreadyStarted
	}
	id, err := s.cron.AddFunc(s.cfg.Spec, func() {
		if _, err := s.RunNow(ctx); err != nil {
			zap.L().Error("reminder cycle finished with errors", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("add reminder job: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.started = true
	s.status.Started = true
	zap.L().Info("reminder scheduler started",
		zap.String("spec", s.cfg.Spec),
		zap.String("location", s.cfg.Location.String()))
	return nil
}

// Stop halts the timer and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cron.Remove(s.entryID)
	s.started = false
	s.status.Started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	// a manual cycle may still hold the run lock
	s.runMu.Lock()
	defer s.runMu.Unlock()
	zap.L().Info("reminder scheduler stopped")
}

// RunNow runs one cycle: the prescription check, then the stock check. A
// failure in one check does not skip the other. The returned error joins both.
func (s *Scheduler) RunNow(ctx context.Context) (CycleResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setRunning(true)
	var res CycleResult
	rxErr := safeRun("prescription check", func() error {
		var err error
		res.Prescriptions, err = s.CheckPrescriptions(ctx)
		return err
	})
	stockErr := safeRun("stock check", func() error {
		var err error
		res.Stock, err = s.CheckStock(ctx)
		return err
	})
	err := errors.Join(rxErr, stockErr)
	s.finish(res, err)
	return res, err
}

// CheckPrescriptions publishes a reminder for every prescription expiring in
// exactly the configured lead days.
func (s *Scheduler) CheckPrescriptions(ctx context.Context) ([]Reminder, error) {
	meds, err := s.store.ListMedicines(ctx)
	if err != nil {
		zap.L().Error("prescription check: load medicines", zap.Error(err))
		return nil, err
	}
	expiries, err := s.store.PrescriptionExpiries(ctx)
	if err != nil {
		zap.L().Error("prescription check: load prescriptions", zap.Error(err))
		return nil, err
	}
	today := s.store.Today()
	var fired []Reminder
	for _, m := range meds {
		exp, ok := expiries[m.ID]
		if !ok || !PrescriptionDue(today, exp, s.cfg.PrescriptionLeadDays) {
			continue
		}
		r := newPrescriptionReminder(m, exp, s.cfg.PrescriptionLeadDays)
		s.publish(ctx, &r)
		fired = append(fired, r)
	}
	zap.L().Info("prescription check done", zap.Int("fired", len(fired)))
	return fired, nil
}

// CheckStock runs today's decrement, unless an earlier cycle already did, and
// then publishes at most one stock reminder per medicine.
func (s *Scheduler) CheckStock(ctx context.Context) ([]Reminder, error) {
	if _, _, err := s.store.DecrementForDay(ctx, s.store.Today()); err != nil {
		zap.L().Error("stock check: daily decrement", zap.Error(err))
		return nil, err
	}
	meds, err := s.store.ListMedicines(ctx)
	if err != nil {
		zap.L().Error("stock check: load medicines", zap.Error(err))
		return nil, err
	}
	var fired []Reminder
	for _, m := range meds {
		kind, ok := StockReminderKind(m, s.cfg.StockAlertDays)
		if !ok {
			continue
		}
		r := newStockReminder(m, kind)
		s.publish(ctx, &r)
		fired = append(fired, r)
	}
	zap.L().Info("stock check done", zap.Int("fired", len(fired)))
	return fired, nil
}

func (s *Scheduler) publish(ctx context.Context, r *Reminder) {
	r.CreatedAt = time.Now()
	if s.bus != nil {
		s.bus.Publish(TopicReminder, ctx, *r)
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if s.started {
		st.NextRunAt = s.cron.Entry(s.entryID).Next
	}
	return st
}

func (s *Scheduler) setRunning(running bool) {
	s.mu.Lock()
	s.status.Running = running
	s.mu.Unlock()
}

func (s *Scheduler) finish(res CycleResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.LastRunAt = time.Now()
	s.status.LastFired = res.Fired()
	if err != nil {
		s.status.LastResult = "failed"
		s.status.LastMessage = err.Error()
		return
	}
	s.status.LastResult = "success"
	s.status.LastMessage = fmt.Sprintf("%d reminders fired", res.Fired())
}

// safeRun turns a panic inside a job into an error so the process keeps running.
func safeRun(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			zap.S().Errorf("%s panic: %v", name, r)
			err = fmt.Errorf("%s panic: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
