// Package gateway wraps the external speech and translation collaborators
// with per-call timeouts and typed failures.
package gateway

//go:generate mockgen -destination=gatewaymock/gateway_mock.go -package=gatewaymock . Transcriber,Translator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/metrics"
)

const DefaultTimeout = 30 * time.Second

// Transcript is what the speech collaborator heard.
// Language is whatever the collaborator reports: a code or an english name.
type Transcript struct {
	Text     string
	Language string
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (Transcript, error)
}

type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

type Gateway struct {
	transcriber Transcriber
	translator  Translator
	catalog     *domain.Catalog
	timeout     time.Duration
	metrics     *metrics.Metrics
}

func New(tr Transcriber, tl Translator, catalog *domain.Catalog, timeout time.Duration, m *metrics.Metrics) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		transcriber: tr,
		translator:  tl,
		catalog:     catalog,
		timeout:     timeout,
		metrics:     m,
	}
}

// Transcribe calls the speech collaborator once. The detected language falls
// back to claimed when the collaborator reports nothing usable.
func (g *Gateway) Transcribe(ctx context.Context, audio []byte, claimed domain.Language) (string, domain.Language, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	t, err := g.transcriber.Transcribe(ctx, audio)
	g.metrics.ObserveCall("transcribe", started, err)
	if err != nil {
		return "", "", domain.ErrTranscriptionFailed.WithCause(timeoutCause(ctx, err))
	}

	lang := claimed
	if detected, ok := g.catalog.Detect(t.Language); ok {
		lang = detected
	}
	return strings.TrimSpace(t.Text), lang, nil
}

// Translate calls the translation collaborator once for a single recipient.
func (g *Gateway) Translate(ctx context.Context, text string, src, dst domain.Language) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	out, err := g.translator.Translate(ctx, text, string(src), string(dst))
	g.metrics.ObserveCall("translate", started, err)
	if err != nil {
		return "", domain.ErrTranslationFailed.WithCause(timeoutCause(ctx, err))
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", domain.Errorf(domain.KindTranslationFailed, "translation came back empty")
	}
	return out, nil
}

func timeoutCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.New("timed out")
	}
	return err
}
