package app_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/babel/internal/app"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/core/coretest"
	"github.com/dkeye/babel/internal/domain"
)

type member struct {
	id  domain.ParticipantID
	sig *coretest.Signal
	ses *core.Session
}

func join(t *testing.T, room core.RoomService, name string, lang domain.Language, capacity int) member {
	t.Helper()
	sig := coretest.NewSignal(capacity)
	sess := core.NewSession(core.SessionID("sid-"+name), sig)
	res := room.Join(name, lang, sess)
	require.True(t, sess.Attach(room.Room().ID, res.Participant.ID))
	return member{id: res.Participant.ID, sig: sig, ses: sess}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	rm := app.NewRoomManager()
	const n = 64
	got := make([]core.RoomService, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = rm.GetOrCreate("R")
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		require.Same(t, got[0], got[i])
	}
	assert.Len(t, rm.List(), 1)
	assert.Equal(t, "Conference Room R", got[0].Room().Name)
}

func TestRoomManagerCreateGetStop(t *testing.T) {
	rm := app.NewRoomManager()
	r := rm.Create("Standup")
	id := r.Room().ID
	require.NotEmpty(t, id)

	got, ok := rm.GetRoom(id)
	require.True(t, ok)
	assert.Equal(t, "Standup", got.Room().Name)

	_, ok = rm.GetRoom("missing")
	assert.False(t, ok)

	stopped, ok := rm.StopRoom(id)
	require.True(t, ok)
	assert.Same(t, r, stopped)
	_, ok = rm.StopRoom(id)
	assert.False(t, ok)
	assert.Empty(t, rm.List())
}

func TestListReportsOnlineCount(t *testing.T) {
	rm := app.NewRoomManager()
	room := rm.GetOrCreate("R")
	a := join(t, room, "Alice", "en", 0)
	join(t, room, "Bob", "es", 0)
	room.Leave(a.id, a.ses)

	list := rm.List()
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ParticipantCount)
}

func TestPublishSkipsOrigin(t *testing.T) {
	room := app.NewRoomManager().GetOrCreate("R")
	a := join(t, room, "Alice", "en", 0)
	b := join(t, room, "Bob", "es", 0)
	c := join(t, room, "Carol", "fr", 0)

	router := app.NewRouter(nil, nil)
	res := router.Publish(room, app.Event{
		Type:       "typing_indicator",
		Payload:    map[string]string{"type": "typing_indicator"},
		Origin:     a.id,
		SkipOrigin: true,
	})
	assert.Equal(t, 2, res.SendTo)
	assert.Empty(t, a.sig.Messages())
	assert.Len(t, b.sig.Messages(), 1)
	assert.Len(t, c.sig.Messages(), 1)
}

func TestPublishTargeted(t *testing.T) {
	room := app.NewRoomManager().GetOrCreate("R")
	a := join(t, room, "Alice", "en", 0)
	b := join(t, room, "Bob", "es", 0)

	res := app.NewRouter(nil, nil).Publish(room, app.Event{
		Type:    "voice_translation",
		Payload: map[string]string{"type": "voice_translation"},
		Target:  b.id,
	})
	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, a.sig.Messages())
	assert.Equal(t, []string{"voice_translation"}, b.sig.Types())
}

func TestPublishBackpressure(t *testing.T) {
	for _, tc := range []struct {
		policy     app.Policy
		wantClosed bool
	}{
		{app.DropPolicy{}, false},
		{app.KickPolicy{}, true},
	} {
		t.Run(fmt.Sprintf("%T", tc.policy), func(t *testing.T) {
			room := app.NewRoomManager().GetOrCreate("R")
			slow := join(t, room, "Slow", "en", 1)
			fast := join(t, room, "Fast", "en", 0)
			router := app.NewRouter(tc.policy, nil)

			ev := app.Event{Type: "pong", Payload: map[string]string{"type": "pong"}}
			router.Publish(room, ev)
			res := router.Publish(room, ev)

			assert.Equal(t, 1, res.SendTo)
			require.Len(t, res.Dropped, 1)
			assert.Same(t, slow.ses, res.Dropped[0])
			assert.Equal(t, tc.wantClosed, slow.sig.Closed())
			assert.Len(t, fast.sig.Messages(), 2)
		})
	}
}

func TestPolicyByName(t *testing.T) {
	assert.IsType(t, app.KickPolicy{}, app.PolicyByName("kick"))
	assert.IsType(t, app.DropPolicy{}, app.PolicyByName("drop"))
	assert.IsType(t, app.DropPolicy{}, app.PolicyByName(""))
}

func TestRegistry(t *testing.T) {
	reg := app.NewRegistry()
	sess := core.NewSession("s1", coretest.NewSignal(0))
	canceled := false
	reg.Bind(sess, func() { canceled = true })

	got, ok := reg.Get("s1")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, reg.Count())

	assert.True(t, reg.Cancel("s1"))
	assert.True(t, canceled)
	assert.True(t, reg.Unbind("s1"))
	assert.False(t, reg.Unbind("s1"))
	assert.Equal(t, 0, reg.Count())
}
