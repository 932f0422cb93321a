package memstor

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"attachget/internal/model"
)

const (
	cleanTimeout = 1 * time.Minute
)

type Run = model.Run

type Config struct {
	MaxTotal int           // < 0: без ограничений
	TTL      time.Duration // время жизни записи после последнего обновления
}

var (
	ErrRunNotFound    = model.ErrRunNotFound
	ErrStoreFull      = model.ErrStoreFull
	ErrStoreCancelled = model.ErrStoreCancelled
)

// Memstor хранит сводки запусков в памяти и удаляет просроченные.
type Memstor struct {
	cfg       Config
	mu        sync.RWMutex
	runs      map[string]*model.Run
	now       func() time.Time
	cancel    context.CancelFunc
	cancelled bool
}

func New(cfg Config) *Memstor {
	m := &Memstor{
		cfg:  cfg,
		runs: make(map[string]*model.Run),
		now:  time.Now,
	}
	m.startCleaner()
	return m
}

// Save добавляет запуск или обновляет существующий и продлевает его TTL.
func (m *Memstor) Save(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelled {
		return ErrStoreCancelled
	}

	if _, exists := m.runs[run.ID]; !exists {
		if m.cfg.MaxTotal >= 0 && len(m.runs) >= m.cfg.MaxTotal {
			return ErrStoreFull
		}
	}

	run.ExpiresAt = m.now().Add(m.cfg.TTL)
	m.runs[run.ID] = &run
	return nil
}

func (m *Memstor) Get(ctx context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cancelled {
		return Run{}, ErrStoreCancelled
	}

	run, exists := m.runs[id]
	if !exists {
		return Run{}, ErrRunNotFound
	}
	return *run, nil
}

// List возвращает все запуски, новые первыми.
func (m *Memstor) List(ctx context.Context) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cancelled {
		return nil, ErrStoreCancelled
	}

	runs := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, *run)
	}
	slices.SortFunc(runs, func(a, b Run) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return runs, nil
}

func (m *Memstor) cleanExpired() {
	// FIXME: для перформанса нужно использовать PriorityQueue по ExpiresAt

	var expired []string
	func() {
		m.mu.RLock()
		defer m.mu.RUnlock()

		now := m.now()
		for _, run := range m.runs {
			if run.ExpiresAt.Before(now) {
				expired = append(expired, run.ID)
			}
		}
	}()

	if len(expired) > 0 {
		m.mu.Lock()
		defer m.mu.Unlock()

		now := m.now()
		for _, id := range expired {
			// запись могли продлить, пока лок был отпущен
			if run, ok := m.runs[id]; ok && run.ExpiresAt.Before(now) {
				delete(m.runs, id)
			}
		}
	}
}

func (m *Memstor) startCleaner() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	go func() {
		tm := time.NewTimer(cleanTimeout)
		defer tm.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tm.C:
				m.cleanExpired()
				tm.Reset(cleanTimeout)
			}
		}
	}()
}

func (m *Memstor) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cancelled {
		m.cancel()
		clear(m.runs)
		m.cancelled = true
	}
}
