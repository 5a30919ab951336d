package gateway

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Echo is the offline collaborator used when no API key is configured.
// The audio payload is read as UTF-8 text and translations are tagged with
// the target language.
type Echo struct {
	Language string
}

func (e Echo) Transcribe(ctx context.Context, audio []byte) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	if !utf8.Valid(audio) {
		return Transcript{}, fmt.Errorf("echo: audio is not utf-8 text")
	}
	return Transcript{Text: string(audio), Language: e.Language}, nil
}

func (e Echo) Translate(ctx context.Context, text, _, targetLang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}
