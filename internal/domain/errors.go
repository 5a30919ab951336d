package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind is a machine-readable error category sent to clients.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindProtocol            Kind = "protocol_error"
	KindNotJoined           Kind = "not_joined"
	KindEmptyAudio          Kind = "empty_audio"
	KindInvalidText         Kind = "invalid_text"
	KindTranscriptionFailed Kind = "transcription_failed"
	KindTranslationFailed   Kind = "translation_failed"
	KindRoomNotFound        Kind = "room_not_found"
	KindUnknownLanguage     Kind = "unknown_language"
	KindInvalidName         Kind = "invalid_name"
	KindBusy                Kind = "busy"
	KindRateLimited         Kind = "rate_limited"
)

// Error carries a kind and a message that is safe to show to a client.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithCause returns a copy of e carrying cause. Sentinels stay untouched.
func (e *Error) WithCause(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Cause: cause}
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

var (
	ErrProtocol            = &Error{Kind: KindProtocol, Message: "malformed message"}
	ErrNotJoined           = &Error{Kind: KindNotJoined, Message: "not joined to conference"}
	ErrEmptyAudio          = &Error{Kind: KindEmptyAudio, Message: "no audio data provided"}
	ErrEmptyText           = &Error{Kind: KindInvalidText, Message: "no text provided"}
	ErrTranscriptionFailed = &Error{Kind: KindTranscriptionFailed, Message: "speech recognition failed"}
	ErrTranslationFailed   = &Error{Kind: KindTranslationFailed, Message: "translation failed"}
	ErrRoomNotFound        = &Error{Kind: KindRoomNotFound, Message: "room not found"}
	ErrUnknownLanguage     = &Error{Kind: KindUnknownLanguage, Message: "unsupported language"}
	ErrInvalidName         = &Error{Kind: KindInvalidName, Message: "invalid participant name"}
	ErrBusy                = &Error{Kind: KindBusy, Message: "previous voice message is still being processed"}
	ErrRateLimited         = &Error{Kind: KindRateLimited, Message: "too many messages"}
)

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Public returns the kind and client-facing message of err.
// Errors outside the taxonomy are reported as unknown without their text.
func Public(err error) (Kind, string) {
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown, "internal error"
	}
	msg := e.Message
	if e.Cause != nil {
		if cause := strings.TrimSpace(e.Cause.Error()); cause != "" {
			msg = msg + ": " + truncate(cause, 200)
		}
	}
	return e.Kind, msg
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
