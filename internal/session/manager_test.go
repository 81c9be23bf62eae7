package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/wallroll/internal/dialog"
	"github.com/thebtf/wallroll/pkg/models"
)

// scenario answers the questionnaire for a 5 x 3 x 2.7 room with one window.
var scenario = []string{
	"5", "3", "2.7",
	"1", "1.2", "1.3",
	"0",
	"0.53", "10.05", "0",
}

// ManagerSuite is a test suite for Manager operations.
type ManagerSuite struct {
	suite.Suite
	ctx     context.Context
	store   *MemoryStore
	manager *Manager

	mu     sync.Mutex
	events []Event
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewMemoryStore(MemoryConfig{})
	s.manager = NewManager(s.store, dialog.NewController(dialog.Options{}))
	s.events = nil
	s.manager.AddObserver(ObserverFunc(func(_ context.Context, ev Event) {
		s.mu.Lock()
		s.events = append(s.events, ev)
		s.mu.Unlock()
	}))
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) send(chat string, inputs ...string) []dialog.Reply {
	var replies []dialog.Reply
	for _, in := range inputs {
		var err error
		replies, err = s.manager.HandleMessage(s.ctx, chat, in)
		s.Require().NoError(err)
	}
	return replies
}

func (s *ManagerSuite) lastEvent() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Require().NotEmpty(s.events)
	return s.events[len(s.events)-1]
}

// TestFullConversation tests a conversation from the first message to the result.
func (s *ManagerSuite) TestFullConversation() {
	replies := s.send("chat-1", "hello")
	s.Require().Len(replies, 2)
	s.Equal(dialog.ReplyGreeting, replies[0].Kind)

	sess, err := s.manager.Session(s.ctx, "chat-1")
	s.NoError(err)
	s.Require().NotNil(sess)
	s.Equal(models.StepLength, sess.Cursor)

	replies = s.send("chat-1", scenario...)
	s.Require().Len(replies, 1)
	s.Equal(dialog.ReplyResult, replies[0].Kind)
	s.True(replies[0].OfferRestart)

	sess, err = s.manager.Session(s.ctx, "chat-1")
	s.NoError(err)
	s.Nil(sess, "session is cleared after the result")

	ev := s.lastEvent()
	s.Equal("completed", ev.Type)
	s.Equal(dialog.OutcomeCompleted, ev.Outcome)
	s.Require().NotNil(ev.Result)
	s.Equal(11, ev.Result.RollsNeeded)
}

// TestRejectedAnswer tests that invalid input leaves the stored session alone.
func (s *ManagerSuite) TestRejectedAnswer() {
	s.send("chat-1", "/start", "5")

	replies := s.send("chat-1", "abc")
	s.Require().Len(replies, 1)
	s.Equal(dialog.ReplyError, replies[0].Kind)

	sess, _ := s.manager.Session(s.ctx, "chat-1")
	s.Require().NotNil(sess)
	s.Equal(models.StepWidth, sess.Cursor)
	s.Equal(5.0, sess.RoomLength)

	ev := s.lastEvent()
	s.Equal("rejected", ev.Type)
	s.Equal("parse", ev.ErrorKind)
	s.Equal(models.StepWidth, ev.Step)
}

// TestConversationsAreIndependent tests that chats do not share state.
func (s *ManagerSuite) TestConversationsAreIndependent() {
	s.send("a", "/start", "5", "3")
	s.send("b", "/start", "7")

	a, _ := s.manager.Session(s.ctx, "a")
	b, _ := s.manager.Session(s.ctx, "b")
	s.Equal(models.StepHeight, a.Cursor)
	s.Equal(models.StepWidth, b.Cursor)
	s.Equal(7.0, b.RoomLength)
}

// TestRestart tests that restart replaces an in-progress session.
func (s *ManagerSuite) TestRestart() {
	s.send("chat-1", "/start", "5", "3")

	replies, err := s.manager.Restart(s.ctx, "chat-1")
	s.NoError(err)
	s.Require().Len(replies, 2)

	sess, _ := s.manager.Session(s.ctx, "chat-1")
	s.Require().NotNil(sess)
	s.Equal(models.StepLength, sess.Cursor)
	s.Zero(sess.RoomLength)
	s.Equal("started", s.lastEvent().Type)
}

// TestAbandon tests that abandon drops the session silently.
func (s *ManagerSuite) TestAbandon() {
	s.send("chat-1", "/start", "5")
	before := len(s.events)

	s.NoError(s.manager.Abandon(s.ctx, "chat-1"))

	sess, _ := s.manager.Session(s.ctx, "chat-1")
	s.Nil(sess)
	s.Len(s.events, before)
}

// TestConcurrentMessages tests that messages for one chat are serialised.
func (s *ManagerSuite) TestConcurrentMessages() {
	s.send("chat-1", "/start")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.manager.HandleMessage(s.ctx, "chat-1", "4")
			s.NoError(err)
		}()
	}
	wg.Wait()

	// Twenty positive answers walk the cursor through the scalar steps and the
	// window loop; with serialised updates every answer lands exactly once.
	sess, err := s.manager.Session(s.ctx, "chat-1")
	s.NoError(err)
	s.Require().NotNil(sess)
	s.Equal(4.0, sess.RoomLength)
	s.Equal(4.0, sess.RoomWidth)
	s.Equal(4.0, sess.WallHeight)
	s.Equal(4, sess.WindowCount)
	s.Equal(0, s.manager.locks.len())
}

func TestManager_StoreErrors(t *testing.T) {
	ctrl := dialog.NewController(dialog.Options{})

	t.Run("load failure", func(t *testing.T) {
		m := NewManager(&failingStore{getErr: errors.New("boom")}, ctrl)
		_, err := m.HandleMessage(context.Background(), "chat", "5")
		assert.ErrorContains(t, err, "load session")
	})

	t.Run("store failure", func(t *testing.T) {
		m := NewManager(&failingStore{putErr: errors.New("boom")}, ctrl)
		_, err := m.HandleMessage(context.Background(), "chat", "5")
		assert.ErrorContains(t, err, "store session")
	})

	t.Run("restart store failure", func(t *testing.T) {
		m := NewManager(&failingStore{putErr: errors.New("boom")}, ctrl)
		_, err := m.Restart(context.Background(), "chat")
		assert.Error(t, err)
	})
}

func TestKeyLocks(t *testing.T) {
	locks := newKeyLocks()

	unlockA := locks.lock("a")
	unlockB := locks.lock("b")
	assert.Equal(t, 2, locks.len())

	acquired := make(chan struct{})
	go func() {
		unlock := locks.lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	<-acquired
	unlockB()

	assert.Eventually(t, func() bool { return locks.len() == 0 }, time.Second, time.Millisecond)
}

type failingStore struct {
	getErr error
	putErr error
}

func (f *failingStore) Get(context.Context, string) (*models.Session, error) {
	return nil, f.getErr
}

func (f *failingStore) Put(context.Context, string, *models.Session) error {
	return f.putErr
}

func (f *failingStore) Clear(context.Context, string) error {
	return nil
}

var _ Store = (*failingStore)(nil)

func ExampleManager() {
	m := NewManager(NewMemoryStore(MemoryConfig{}), dialog.NewController(dialog.Options{}))
	replies, _ := m.HandleMessage(context.Background(), "chat", "/start")
	fmt.Println(len(replies), replies[1].Kind)
	// Output: 2 prompt
}
