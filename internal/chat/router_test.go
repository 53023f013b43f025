package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/filmcrew/setchat/internal/auth"
	"github.com/filmcrew/setchat/internal/database"
	"github.com/filmcrew/setchat/internal/stats"
	"github.com/filmcrew/setchat/internal/testutil"
	"github.com/filmcrew/setchat/internal/types"
)

// registeredSession builds a session wired to the server and registers
// it for the test project.
func registeredSession(t *testing.T, cs *Server, userID, name string) *Session {
	t.Helper()

	s := testSession(userID, name)
	s.server = cs
	s.log = cs.log
	cs.registry.Register(testProjectID, s)
	return s
}

func drainEvents(t *testing.T, s *Session, n int) []*ServerEvent {
	t.Helper()

	events := make([]*ServerEvent, 0, n)
	for i := 0; i < n; i++ {
		select {
		case event := <-s.send:
			events = append(events, event)
		default:
			t.Fatalf("expected %d queued events, got %d", n, len(events))
		}
	}
	return events
}

func TestRouter_Publish(t *testing.T) {
	t.Run("delivers to every session of the project", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, Options{})
		a := registeredSession(t, cs, "u1", "User One")
		b := registeredSession(t, cs, "u2", "User Two")

		event := MessageDeletedEvent(testProjectID, "m1")
		cs.router.Publish(testProjectID, event)

		assert.Equal(t, []*ServerEvent{event}, drainEvents(t, a, 1))
		assert.Equal(t, []*ServerEvent{event}, drainEvents(t, b, 1))
	})

	t.Run("sequential publishes arrive in order", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, Options{})
		a := registeredSession(t, cs, "u1", "User One")

		first := MessageDeletedEvent(testProjectID, "m1")
		second := MessageDeletedEvent(testProjectID, "m2")
		cs.router.Publish(testProjectID, first)
		cs.router.Publish(testProjectID, second)

		assert.Equal(t, []*ServerEvent{first, second}, drainEvents(t, a, 2))
	})

	t.Run("drops a backlogged session and announces its departure", func(t *testing.T) {
		db := &database.MockChatRepository{}

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("RegisterMetric", mock.Anything).Times(5)
		su.On("Incr", StatBroadcastDrops).Once()
		su.On("Incr", mock.Anything).Maybe()
		su.On("Decr", mock.Anything).Maybe()

		cs, err := NewServer(testutil.TestLogger(t), db, db, auth.NewTokenService(testSigningKey), su, Options{})
		assert.NoError(t, err)

		a := registeredSession(t, cs, "u1", "User One")
		c := registeredSession(t, cs, "u3", "User Three")

		// b's queue can never accept an event
		b := registeredSession(t, cs, "u2", "User Two")
		b.send = make(chan *ServerEvent)
		b.conn = newTestConn(t)
		b.active.Store(true)

		event := MessageDeletedEvent(testProjectID, "m1")
		cs.router.Publish(testProjectID, event)

		online := cs.registry.Online(testProjectID)
		assert.Equal(t, []types.Identity{
			{UserID: "u1", DisplayName: "User One", Role: types.RoleChild},
			{UserID: "u3", DisplayName: "User Three", Role: types.RoleChild},
		}, online, "expected the dead session to be deregistered")
		assert.Equal(t, stateClosed, b.State(), "expected the dead session to be closed")

		for _, s := range []*Session{a, c} {
			events := drainEvents(t, s, 2)
			assert.Equal(t, event, events[0], "expected the original event first")
			assert.Equal(t, EventLeft, events[1].Type, "expected a deferred left notice")
			assert.Equal(t, "u2", events[1].User.UserID, "expected the left notice to name the dropped user")
		}
	})
}
