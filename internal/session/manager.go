package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/wallroll/internal/dialog"
	"github.com/thebtf/wallroll/pkg/models"
)

// Event describes one handled message, for statistics and live feeds.
type Event struct {
	Chat      string                    `json:"chat"`
	Outcome   dialog.Outcome            `json:"-"`
	Type      string                    `json:"type"`
	Step      models.Step               `json:"step"`
	ErrorKind string                    `json:"error_kind,omitempty"`
	Result    *models.CalculationResult `json:"result,omitempty"`
	At        time.Time                 `json:"at"`
}

// Observer receives an Event after every handled message.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Manager serialises messages per conversation and persists the resulting state.
type Manager struct {
	store Store
	ctrl  *dialog.Controller
	locks *keyLocks

	mu        sync.RWMutex
	observers []Observer
}

// NewManager creates a manager over store.
func NewManager(store Store, ctrl *dialog.Controller) *Manager {
	return &Manager{
		store: store,
		ctrl:  ctrl,
		locks: newKeyLocks(),
	}
}

// AddObserver registers o for subsequent events.
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Controller returns the dialog controller.
func (m *Manager) Controller() *dialog.Controller {
	return m.ctrl
}

// HandleMessage runs one inbound message for chat and returns the replies.
// Only store failures are returned as errors.
func (m *Manager) HandleMessage(ctx context.Context, chat, text string) ([]dialog.Reply, error) {
	unlock := m.locks.lock(chat)
	defer unlock()

	sess, err := m.store.Get(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	turn := m.ctrl.Handle(sess, text)
	if err := m.apply(ctx, chat, turn); err != nil {
		return nil, err
	}
	return turn.Replies, nil
}

// Restart discards any session for chat and starts a new one.
func (m *Manager) Restart(ctx context.Context, chat string) ([]dialog.Reply, error) {
	unlock := m.locks.lock(chat)
	defer unlock()

	turn := m.ctrl.Start()
	if err := m.apply(ctx, chat, turn); err != nil {
		return nil, err
	}
	return turn.Replies, nil
}

// Session returns a copy of the current session for chat, or nil.
func (m *Manager) Session(ctx context.Context, chat string) (*models.Session, error) {
	unlock := m.locks.lock(chat)
	defer unlock()
	return m.store.Get(ctx, chat)
}

// Abandon removes the session for chat without replying.
func (m *Manager) Abandon(ctx context.Context, chat string) error {
	unlock := m.locks.lock(chat)
	defer unlock()
	return m.store.Clear(ctx, chat)
}

func (m *Manager) apply(ctx context.Context, chat string, turn dialog.Turn) error {
	switch {
	case turn.Clear:
		if err := m.store.Clear(ctx, chat); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	case turn.Changed():
		if err := m.store.Put(ctx, chat, turn.Session); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
	}

	ev := Event{
		Chat:    chat,
		Outcome: turn.Outcome,
		Type:    turn.Outcome.String(),
		Step:    turn.Step,
		Result:  turn.Result,
		At:      time.Now(),
	}
	var inErr *dialog.InputError
	if errors.As(turn.Err, &inErr) {
		ev.ErrorKind = inErr.Kind.String()
	}

	logTurn(chat, turn)
	m.notify(ctx, ev)
	return nil
}

func (m *Manager) notify(ctx context.Context, ev Event) {
	m.mu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	for _, o := range observers {
		o.Observe(ctx, ev)
	}
}

func logTurn(chat string, turn dialog.Turn) {
	switch turn.Outcome {
	case dialog.OutcomeFailed:
		log.Error().Err(turn.Err).Str("chat", chat).Msg("Calculation failed, session cleared")
	case dialog.OutcomeGeometry:
		log.Info().Err(turn.Err).Str("chat", chat).Msg("Roll cannot yield a strip, session cleared")
	case dialog.OutcomeCompleted:
		log.Info().
			Str("chat", chat).
			Int("rolls", turn.Result.RollsNeeded).
			Int("strips", turn.Result.StripsNeeded).
			Msg("Calculation completed")
	case dialog.OutcomeRejected:
		log.Debug().Err(turn.Err).Str("chat", chat).Str("step", turn.Step.String()).Msg("Answer rejected")
	default:
		log.Debug().Str("chat", chat).Str("step", turn.Step.String()).Str("outcome", turn.Outcome.String()).Msg("Message handled")
	}
}

// keyLocks hands out one mutex per key, dropping it when no goroutine holds or waits for it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
