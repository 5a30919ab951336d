package orch

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/app/pipeline"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/protocol"
)

// OnText delivers a typed chat message to every other online participant,
// translated to each one's language. It does not take the speaking slot.
func (o *Orchestrator) OnText(sid core.SessionID, text, rawLang string) error {
	_, room, speaker, err := o.joined(sid)
	if err != nil {
		return err
	}
	text, err = validText(text)
	if err != nil {
		return err
	}
	var src domain.Language
	if strings.TrimSpace(rawLang) != "" {
		if src, err = o.Catalog.Parse(rawLang); err != nil {
			return err
		}
	}
	room.Touch(speaker.ID)

	req := pipeline.TextRequest{
		Room:           room,
		Speaker:        speaker,
		Text:           text,
		SourceLanguage: src,
	}
	o.spawn(sid, "text", func() {
		o.Pipeline.RunText(o.baseContext(), req)
	})
	return nil
}

func validText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", domain.ErrEmptyText
	}
	if utf8.RuneCountInString(text) > domain.MaxTextLen {
		return "", domain.Errorf(domain.KindInvalidText, "text is longer than %d characters", domain.MaxTextLen)
	}
	return text, nil
}

// TranslationQuery is a validated one-off translation.
type TranslationQuery struct {
	Text   string
	Source domain.Language
	Target domain.Language
}

// ParseTranslation checks a one-off translation. An empty source language
// means the default language.
func (o *Orchestrator) ParseTranslation(text, rawSrc, rawDst string) (TranslationQuery, error) {
	var q TranslationQuery
	var err error
	if q.Text, err = validText(text); err != nil {
		return q, err
	}
	q.Source = o.DefaultLanguage
	if strings.TrimSpace(rawSrc) != "" || q.Source == "" {
		if q.Source, err = o.Catalog.Parse(rawSrc); err != nil {
			return q, err
		}
	}
	if q.Target, err = o.Catalog.Parse(rawDst); err != nil {
		return q, err
	}
	return q, nil
}

// Translate runs a one-off translation. Same language is returned as is.
func (o *Orchestrator) Translate(ctx context.Context, q TranslationQuery) (protocol.TranslationResult, error) {
	res := protocol.TranslationResult{
		Type:           protocol.TypeTranslationResult,
		OriginalText:   q.Text,
		TranslatedText: q.Text,
		SourceLanguage: q.Source,
		TargetLanguage: q.Target,
	}
	if q.Source == q.Target {
		return res, nil
	}
	out, err := o.Gateway.Translate(ctx, q.Text, q.Source, q.Target)
	if err != nil {
		return protocol.TranslationResult{}, err
	}
	res.TranslatedText = out
	return res, nil
}

// OnTranslationRequest answers translation_request to the sender only. The
// connection does not need to be joined.
func (o *Orchestrator) OnTranslationRequest(sid core.SessionID, text, rawSrc, rawDst string) error {
	q, err := o.ParseTranslation(text, rawSrc, rawDst)
	if err != nil {
		return err
	}
	o.spawn(sid, "translate", func() {
		res, err := o.Translate(o.baseContext(), q)
		if err != nil {
			log.Warn().Str("module", "app.orch").Str("sid", string(sid)).Err(err).Msg("translation request failed")
			o.Send(sid, protocol.ErrorOf(err))
			return
		}
		o.Send(sid, res)
	})
	return nil
}
