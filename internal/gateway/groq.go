package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL            = "https://api.groq.com/openai/v1"
	DefaultTranscriptionModel = "whisper-large-v3"
	DefaultTranslationModel   = "llama-3.1-8b-instant"
)

const interpreterPrompt = "You are a professional interpreter. Translate the user's text from %s to %s. " +
	"Reply with the translation only, without quotes, notes or explanations."

type GroqConfig struct {
	BaseURL            string
	APIKey             string
	TranscriptionModel string
	TranslationModel   string
}

// GroqClient talks to an OpenAI compatible API. It serves as both Transcriber
// and Translator.
type GroqClient struct {
	client             openai.Client
	transcriptionModel string
	translationModel   string
}

func NewGroqClient(cfg GroqConfig) (*GroqClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gateway: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = DefaultTranscriptionModel
	}
	if cfg.TranslationModel == "" {
		cfg.TranslationModel = DefaultTranslationModel
	}
	log.Info().Str("module", "gateway").
		Str("base_url", cfg.BaseURL).
		Str("transcription_model", cfg.TranscriptionModel).
		Str("translation_model", cfg.TranslationModel).
		Msg("groq client configured")

	return &GroqClient{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		),
		transcriptionModel: cfg.TranscriptionModel,
		translationModel:   cfg.TranslationModel,
	}, nil
}

func (c *GroqClient) Transcribe(ctx context.Context, audio []byte) (Transcript, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(audio), "audio.wav", "audio/wav"),
		Model:          openai.AudioModel(c.transcriptionModel),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Transcript{}, err
	}
	// verbose_json carries the detected language, which the typed response omits.
	lang := gjson.Get(resp.RawJSON(), "language").String()
	return Transcript{Text: resp.Text, Language: lang}, nil
}

func (c *GroqClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.translationModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(interpreterPrompt, sourceLang, targetLang)),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(1000),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	return resp.Choices[0].Message.Content, nil
}
