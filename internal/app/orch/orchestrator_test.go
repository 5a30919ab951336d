package orch_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/babel/internal/app"
	"github.com/dkeye/babel/internal/app/orch"
	"github.com/dkeye/babel/internal/app/pipeline"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/core/coretest"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/gateway"
	"github.com/dkeye/babel/internal/gateway/gatewaymock"
	"github.com/dkeye/babel/internal/journal"
)

type conn struct {
	sid core.SessionID
	sig *coretest.Signal
}

func newOrch(t *testing.T, tr gateway.Transcriber, tl gateway.Translator) *orch.Orchestrator {
	t.Helper()
	catalog, err := domain.NewCatalog(domain.DefaultLanguages)
	require.NoError(t, err)
	router := app.NewRouter(nil, nil)
	j := journal.NewMemory(0)
	gw := gateway.New(tr, tl, catalog, time.Second, nil)
	return &orch.Orchestrator{
		Registry:        app.NewRegistry(),
		Rooms:           app.NewRoomManager(),
		Router:          router,
		Pipeline:        pipeline.New(gw, router, j, nil, 4),
		Gateway:         gw,
		Catalog:         catalog,
		Journal:         j,
		DefaultLanguage: "en",
	}
}

func echoOrch(t *testing.T) *orch.Orchestrator {
	return newOrch(t, gateway.Echo{}, gateway.Echo{})
}

func connect(o *orch.Orchestrator, id string) conn {
	sig := coretest.NewSignal(0)
	sess := core.NewSession(core.SessionID(id), sig)
	o.Connect(sess, func() {})
	return conn{sid: sess.ID(), sig: sig}
}

func joined(t *testing.T, o *orch.Orchestrator, id, name, lang string) conn {
	t.Helper()
	c := connect(o, id)
	require.NoError(t, o.JoinConference(c.sid, "R", name, lang))
	return c
}

func TestJoinConferenceFlow(t *testing.T) {
	o := echoOrch(t)
	alice := joined(t, o, "s1", "Alice", "en")

	assert.Equal(t, []string{"joined_successfully", "participants_list"}, alice.sig.Types())
	js := alice.sig.OfType("joined_successfully")[0]
	assert.Equal(t, "R", js["room_id"])
	assert.Equal(t, "Conference Room R", js["room_name"])

	bob := joined(t, o, "s2", "Bob", "es")
	list := bob.sig.OfType("participants_list")[0]["participants"].([]any)
	assert.Len(t, list, 2)
	assert.Empty(t, bob.sig.OfType("participant_joined"), "joiner is not told about itself")

	pj := alice.sig.OfType("participant_joined")
	require.Len(t, pj, 1)
	assert.Equal(t, "Bob", pj[0]["participant"].(map[string]any)["name"])
}

func TestJoinValidation(t *testing.T) {
	o := echoOrch(t)
	c := connect(o, "s1")

	err := o.JoinConference(c.sid, "R", "Alice", "xx")
	assert.ErrorIs(t, err, domain.ErrUnknownLanguage)
	assert.Empty(t, o.Rooms.List(), "room untouched on unknown language")

	assert.ErrorIs(t, o.JoinConference(c.sid, "R", "   ", "en"), domain.ErrInvalidName)

	require.NoError(t, o.JoinConference(c.sid, "R", "Alice", ""))
	room, ok := o.Rooms.GetRoom("R")
	require.True(t, ok)
	assert.Equal(t, domain.Language("en"), room.OnlineSnapshot()[0].Language)
}

func TestRejoinIsIdempotent(t *testing.T) {
	o := echoOrch(t)
	first := joined(t, o, "s1", "Alice", "en")
	bob := joined(t, o, "s2", "Bob", "es")
	firstID := first.sig.OfType("joined_successfully")[0]["participant_id"]

	second := joined(t, o, "s3", "Alice", "fr")
	js := second.sig.OfType("joined_successfully")[0]
	assert.Equal(t, firstID, js["participant_id"])
	assert.Equal(t, true, js["rejoined"])

	room, _ := o.Rooms.GetRoom("R")
	assert.Equal(t, 2, room.MemberCount())
	p, _ := room.Participant(domain.ParticipantID(firstID.(string)))
	assert.Equal(t, domain.Language("fr"), p.Language)

	errs := first.sig.OfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "not_joined", errs[0]["kind"])

	o.OnDisconnect(first.sid)
	p, _ = room.Participant(p.ID)
	assert.True(t, p.Online, "stale connection cannot take the participant offline")
	assert.Empty(t, bob.sig.OfType("participant_left"))

	assert.ErrorIs(t, o.OnVoice(first.sid, []byte("hi"), ""), domain.ErrNotJoined)
}

func TestVoiceAdmission(t *testing.T) {
	o := echoOrch(t)
	c := connect(o, "s1")
	assert.ErrorIs(t, o.OnVoice(c.sid, []byte("hi"), ""), domain.ErrNotJoined)

	require.NoError(t, o.JoinConference(c.sid, "R", "Alice", "en"))
	assert.ErrorIs(t, o.OnVoice(c.sid, nil, ""), domain.ErrEmptyAudio)
}

func TestSecondVoiceWhileSpeakingIsBusy(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := gatewaymock.NewMockTranscriber(ctrl)
	release := make(chan struct{})
	tr.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, audio []byte) (gateway.Transcript, error) {
			<-release
			return gateway.Transcript{Text: string(audio), Language: "en"}, nil
		}).Times(3)

	o := newOrch(t, tr, gateway.Echo{})
	alice := joined(t, o, "s1", "Alice", "en")
	bob := joined(t, o, "s2", "Bob", "en")

	require.NoError(t, o.OnVoice(alice.sid, []byte("one"), ""))
	err := o.OnVoice(alice.sid, []byte("two"), "")
	assert.ErrorIs(t, err, domain.ErrBusy)

	require.NoError(t, o.OnVoice(bob.sid, []byte("other speaker"), ""), "speakers are independent")

	close(release)
	o.Wait()

	require.NoError(t, o.OnVoice(alice.sid, []byte("three"), ""))
	o.Wait()
}

func TestRejoinWhileSpeakingKeepsOneUtterance(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := gatewaymock.NewMockTranscriber(ctrl)
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var running, peak atomic.Int32
	tr.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, audio []byte) (gateway.Transcript, error) {
			n := running.Add(1)
			defer running.Add(-1)
			if n > peak.Load() {
				peak.Store(n)
			}
			started <- struct{}{}
			<-release
			return gateway.Transcript{Text: string(audio), Language: "en"}, nil
		}).Times(2)

	o := newOrch(t, tr, gateway.Echo{})
	first := joined(t, o, "s1", "Alice", "en")
	bob := joined(t, o, "s2", "Bob", "en")

	require.NoError(t, o.OnVoice(first.sid, []byte("one"), ""))
	<-started

	second := joined(t, o, "s3", "Alice", "en")
	assert.ErrorIs(t, o.OnVoice(second.sid, []byte("two"), ""), domain.ErrBusy)
	assert.ErrorIs(t, o.JoinConference(first.sid, "R", "Carol", "en"), domain.ErrBusy,
		"replaced connection stays busy until its utterance ends")

	close(release)
	o.Wait()
	assert.EqualValues(t, 1, peak.Load())

	var flags []any
	for _, m := range bob.sig.OfType("speaking_status") {
		flags = append(flags, m["is_speaking"])
	}
	assert.Equal(t, []any{true, false}, flags)

	require.NoError(t, o.OnVoice(second.sid, []byte("three"), ""))
	<-started
	o.Wait()
	require.NoError(t, o.JoinConference(first.sid, "R", "Carol", "en"))
}

func TestScenarioTwoLanguagesEndToEnd(t *testing.T) {
	o := echoOrch(t)
	alice := joined(t, o, "s1", "Alice", "en")
	bob := joined(t, o, "s2", "Bob", "es")

	require.NoError(t, o.OnVoice(alice.sid, []byte("Good morning"), "en"))
	o.Wait()

	got := bob.sig.OfType("voice_translation")
	require.Len(t, got, 1)
	assert.Equal(t, "[es] Good morning", got[0]["translated_text"])
	assert.Empty(t, alice.sig.OfType("voice_translation"))

	entries, err := o.Journal.Recent(context.Background(), "R", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTypingIsNotEchoed(t *testing.T) {
	o := echoOrch(t)
	alice := joined(t, o, "s1", "Alice", "en")
	bob := joined(t, o, "s2", "Bob", "es")

	require.NoError(t, o.OnTyping(alice.sid, true))
	assert.Empty(t, alice.sig.OfType("typing_indicator"))
	ti := bob.sig.OfType("typing_indicator")
	require.Len(t, ti, 1)
	assert.Equal(t, true, ti[0]["is_typing"])
	assert.Equal(t, "Alice", ti[0]["participant_name"])
}

func TestTextMessage(t *testing.T) {
	o := echoOrch(t)
	stranger := connect(o, "s0")
	alice := joined(t, o, "s1", "Alice", "en")
	bob := joined(t, o, "s2", "Bob", "es")

	assert.ErrorIs(t, o.OnText(stranger.sid, "hi", ""), domain.ErrNotJoined)
	assert.ErrorIs(t, o.OnText(alice.sid, " \n ", ""), domain.ErrEmptyText)
	assert.ErrorIs(t, o.OnText(alice.sid, "hi", "xx"), domain.ErrUnknownLanguage)

	require.NoError(t, o.OnText(alice.sid, "See you", ""))
	o.Wait()

	got := bob.sig.OfType("chat_message")
	require.Len(t, got, 1)
	assert.Equal(t, "[es] See you", got[0]["translated_text"])
	assert.Equal(t, "en", got[0]["original_language"])
	assert.Empty(t, alice.sig.OfType("chat_message"))
	assert.Empty(t, bob.sig.OfType("speaking_status"), "text does not take the speaking slot")

	entries, err := o.Journal.Recent(context.Background(), "R", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.UtteranceText, entries[0].Kind)
}

func TestTranslationRequest(t *testing.T) {
	o := echoOrch(t)
	c := connect(o, "s1")

	assert.ErrorIs(t, o.OnTranslationRequest(c.sid, "Hello", "en", "tlh"), domain.ErrUnknownLanguage)
	assert.ErrorIs(t, o.OnTranslationRequest(c.sid, "", "en", "es"), domain.ErrEmptyText)

	require.NoError(t, o.OnTranslationRequest(c.sid, "Hello", "", "de"))
	o.Wait()
	res := c.sig.OfType("translation_result")
	require.Len(t, res, 1)
	assert.Equal(t, "[de] Hello", res[0]["translated_text"])
	assert.Equal(t, "en", res[0]["source_language"])
}

func TestTranslationRequestFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	tl := gatewaymock.NewMockTranslator(ctrl)
	tl.EXPECT().Translate(gomock.Any(), "Hello", "en", "es").Return("", assert.AnError)
	o := newOrch(t, gateway.Echo{}, tl)
	c := connect(o, "s1")

	require.NoError(t, o.OnTranslationRequest(c.sid, "Hello", "en", "es"))
	o.Wait()
	assert.Empty(t, c.sig.OfType("translation_result"))
	errs := c.sig.OfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "translation_failed", errs[0]["kind"])
}

func TestChangeLanguage(t *testing.T) {
	o := echoOrch(t)
	alice := joined(t, o, "s1", "Alice", "en")
	bob := joined(t, o, "s2", "Bob", "es")

	assert.ErrorIs(t, o.ChangeLanguage(bob.sid, "xx"), domain.ErrUnknownLanguage)
	require.NoError(t, o.ChangeLanguage(bob.sid, "de"))
	assert.Len(t, alice.sig.OfType("language_changed"), 1)
	assert.Len(t, bob.sig.OfType("language_changed"), 1)

	require.NoError(t, o.OnVoice(alice.sid, []byte("Hello"), ""))
	o.Wait()
	assert.Equal(t, "[de] Hello", bob.sig.OfType("voice_translation")[0]["translated_text"])
}

func TestDisconnect(t *testing.T) {
	o := echoOrch(t)
	alice := joined(t, o, "s1", "Alice", "en")
	bob := joined(t, o, "s2", "Bob", "es")

	o.OnDisconnect(bob.sid)
	o.OnDisconnect(bob.sid)

	left := alice.sig.OfType("participant_left")
	require.Len(t, left, 1)
	assert.Equal(t, "Bob", left[0]["participant_name"])

	room, _ := o.Rooms.GetRoom("R")
	assert.Equal(t, 1, room.OnlineCount())
	assert.Equal(t, 2, room.MemberCount(), "participants are kept offline")
	_, ok := o.Registry.Get(bob.sid)
	assert.False(t, ok)

	bob2 := joined(t, o, "s3", "Bob", "es")
	assert.Equal(t, true, bob2.sig.OfType("joined_successfully")[0]["rejoined"])
}

func TestPing(t *testing.T) {
	o := echoOrch(t)
	c := connect(o, "s1")
	o.Ping(c.sid)
	assert.Equal(t, []string{"pong"}, c.sig.Types())
}

func TestEvictRoom(t *testing.T) {
	o := echoOrch(t)
	alice := joined(t, o, "s1", "Alice", "en")
	joined(t, o, "s2", "Bob", "es")
	require.NoError(t, o.OnVoice(alice.sid, []byte("Hello"), ""))
	o.Wait()

	assert.True(t, o.EvictRoom(context.Background(), "R"))
	assert.False(t, o.EvictRoom(context.Background(), "R"))
	assert.True(t, alice.sig.Closed())
	_, ok := o.Rooms.GetRoom("R")
	assert.False(t, ok)

	entries, err := o.Journal.Recent(context.Background(), "R", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	o.OnDisconnect(alice.sid)
	assert.ErrorIs(t, o.OnTyping(alice.sid, true), domain.ErrNotJoined)
}
