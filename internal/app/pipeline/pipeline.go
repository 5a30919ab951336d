// Package pipeline runs one utterance from audio, or typed text, to
// per-recipient delivery.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/babel/internal/app"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/gateway"
	"github.com/dkeye/babel/internal/journal"
	"github.com/dkeye/babel/internal/metrics"
	"github.com/dkeye/babel/internal/protocol"
)

const DefaultWorkers = 4

type Request struct {
	Room    core.RoomService
	Speaker domain.Participant
	Audio   []byte
	// ClaimedLanguage is the speaker_language hint, empty when absent.
	ClaimedLanguage domain.Language
}

type Result struct {
	UtteranceID domain.UtteranceID
	Deliveries  []domain.Delivery
	Failed      int
	Aborted     bool
}

type Pipeline struct {
	gateway *gateway.Gateway
	router  *app.Router
	journal journal.Journal
	metrics *metrics.Metrics
	workers int
}

func New(gw *gateway.Gateway, router *app.Router, j journal.Journal, m *metrics.Metrics, workers int) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{gateway: gw, router: router, journal: j, metrics: m, workers: workers}
}

// Run blocks until every recipient got its voice_translation. The speaker's
// speaking flag and utterance admission are released on every exit path,
// panics included.
func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	started := time.Now()
	room := req.Room
	speaker := req.Speaker
	utt := newUtterance(room, speaker, domain.UtteranceVoice, started)
	utt.Audio = req.Audio
	utt.ClaimedLanguage = req.ClaimedLanguage
	if utt.ClaimedLanguage == "" {
		utt.ClaimedLanguage = speaker.Language
	}
	res := Result{UtteranceID: utt.ID}
	logger := utteranceLogger(utt)

	p.setSpeaking(room, speaker.ID, true)
	defer p.setSpeaking(room, speaker.ID, false)

	text, lang, err := p.gateway.Transcribe(ctx, utt.Audio, utt.ClaimedLanguage)
	if err == nil && text == "" {
		err = domain.Errorf(domain.KindTranscriptionFailed, "no speech detected")
	}
	if err != nil {
		logger.Warn().Err(err).Msg("transcription failed")
		p.router.Publish(room, app.Event{
			Type:    protocol.TypeError,
			Payload: protocol.ErrorOf(err),
			Target:  speaker.ID,
		})
		res.Aborted = true
		p.metrics.Utterance(metrics.OutcomeAborted)
		return res
	}
	utt.Text = text
	utt.DetectedLanguage = lang
	utt.Audio = nil

	return p.distribute(ctx, room, utt, res, started, &logger)
}

// TextRequest is a typed chat message. SourceLanguage empty means the
// speaker's own language.
type TextRequest struct {
	Room           core.RoomService
	Speaker        domain.Participant
	Text           string
	SourceLanguage domain.Language
}

// RunText delivers a typed message the way Run delivers a transcript, without
// transcription or speaking indicators. Recipients get chat_message.
func (p *Pipeline) RunText(ctx context.Context, req TextRequest) Result {
	started := time.Now()
	utt := newUtterance(req.Room, req.Speaker, domain.UtteranceText, started)
	utt.Text = strings.TrimSpace(req.Text)
	utt.DetectedLanguage = req.SourceLanguage
	if utt.DetectedLanguage == "" {
		utt.DetectedLanguage = req.Speaker.Language
	}
	utt.ClaimedLanguage = utt.DetectedLanguage
	logger := utteranceLogger(utt)
	return p.distribute(ctx, req.Room, utt, Result{UtteranceID: utt.ID}, started, &logger)
}

func newUtterance(room core.RoomService, speaker domain.Participant, kind domain.UtteranceKind, at time.Time) domain.Utterance {
	return domain.Utterance{
		ID:          domain.NewUtteranceID(),
		Kind:        kind,
		RoomID:      room.Room().ID,
		SpeakerID:   speaker.ID,
		SpeakerName: speaker.Name,
		CreatedAt:   at.UTC(),
	}
}

func utteranceLogger(utt domain.Utterance) zerolog.Logger {
	return log.With().Str("module", "app.pipeline").
		Str("room", string(utt.RoomID)).
		Str("participant", string(utt.SpeakerID)).
		Str("message_id", string(utt.ID)).
		Str("kind", string(utt.Kind)).
		Logger()
}

// distribute snapshots the online audience and delivers utt to each of them
// through the bounded pool. It returns once every delivery was attempted.
func (p *Pipeline) distribute(ctx context.Context, room core.RoomService, utt domain.Utterance, res Result, started time.Time, logger *zerolog.Logger) Result {
	var recipients []domain.Participant
	for _, rp := range room.OnlineSnapshot() {
		if rp.ID != utt.SpeakerID {
			recipients = append(recipients, rp)
		}
	}

	res.Deliveries = make([]domain.Delivery, len(recipients))
	workers := pool.New().WithMaxGoroutines(p.workers)
	for i, rp := range recipients {
		workers.Go(func() {
			res.Deliveries[i] = p.deliver(ctx, room, utt, rp, logger)
		})
	}
	workers.Wait()

	for _, d := range res.Deliveries {
		if d.Failed() {
			res.Failed++
		}
	}
	if len(recipients) == 0 {
		p.metrics.Utterance(metrics.OutcomeNoAudience)
	} else {
		p.metrics.Utterance(metrics.OutcomeDelivered)
	}

	if p.journal != nil {
		if err := p.journal.Append(ctx, journal.EntryOf(utt, res.Deliveries)); err != nil {
			logger.Warn().Err(err).Msg("journal append failed")
		}
	}

	logger.Info().
		Str("text", utt.Text).
		Str("language", string(utt.DetectedLanguage)).
		Int("recipients", len(recipients)).
		Int("failed", res.Failed).
		Dur("took", time.Since(started)).
		Msg("utterance delivered")
	return res
}

func (p *Pipeline) deliver(ctx context.Context, room core.RoomService, utt domain.Utterance, rp domain.Participant, logger *zerolog.Logger) domain.Delivery {
	d := domain.Delivery{
		UtteranceID:    utt.ID,
		TargetID:       rp.ID,
		TargetName:     rp.Name,
		TargetLanguage: rp.Language,
		SpeakerID:      utt.SpeakerID,
		SpeakerName:    utt.SpeakerName,
		OriginalText:   utt.Text,
		SourceLanguage: utt.DetectedLanguage,
	}

	status := metrics.DeliveryPassthrough
	if rp.Language == utt.DetectedLanguage {
		d.TranslatedText = utt.Text
	} else if out, err := p.gateway.Translate(ctx, utt.Text, utt.DetectedLanguage, rp.Language); err != nil {
		logger.Warn().Err(err).Str("target", string(rp.ID)).Str("target_language", string(rp.Language)).Msg("translation failed")
		d.Err = err
		status = metrics.DeliveryFailed
	} else {
		d.TranslatedText = out
		status = metrics.DeliveryTranslated
	}

	ev := app.Event{
		Type:    protocol.TypeVoiceTranslation,
		Payload: protocol.TranslationOf(d),
		Target:  rp.ID,
	}
	if utt.Kind == domain.UtteranceText {
		ev.Type = protocol.TypeChatMessage
		ev.Payload = protocol.ChatMessageOf(d)
	}
	if sent := p.router.Publish(room, ev); sent.SendTo == 0 {
		status = metrics.DeliveryDropped
	}
	p.metrics.Delivery(status)
	return d
}

func (p *Pipeline) setSpeaking(room core.RoomService, pid domain.ParticipantID, speaking bool) {
	if speaking {
		room.SetSpeaking(pid, true)
	} else {
		room.EndSpeaking(pid)
	}
	p.router.Publish(room, app.Event{
		Type: protocol.TypeSpeakingStatus,
		Payload: protocol.SpeakingStatus{
			Type:          protocol.TypeSpeakingStatus,
			ParticipantID: pid,
			IsSpeaking:    speaking,
		},
	})
}
