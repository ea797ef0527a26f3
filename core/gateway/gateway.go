// Package gateway defines the contracts for external generation services.
//
// Adapters (core/gateway/gemini, core/gateway/deepgram) translate their
// service's responses into these types; nothing above the gateway boundary
// sees an external SDK type.
package gateway

import (
	"context"
	"iter"
)

// Intent is the routing classification of a query.
type Intent string

const (
	// IntentQuestion routes a query to the concurrent text and audio
	// generation tasks. It is also the fallback when classification fails.
	IntentQuestion Intent = "question"
	// IntentDescription routes a query to image search.
	IntentDescription Intent = "description"
)

// IntentClassifier derives a routing hint for a query.
type IntentClassifier interface {
	// ClassifyIntent classifies the query. Errors wrap [ErrGateway].
	ClassifyIntent(ctx context.Context, query string) (Intent, error)
}

// TextGenerator produces a complete written answer grounded in the given
// context passages.
type TextGenerator interface {
	// GenerateText generates the answer. Passage order is relevance order
	// and must be preserved in the prompt. Errors wrap [ErrGateway].
	GenerateText(ctx context.Context, query string, contextPassages []string) (string, error)
}

// AudioStream is a finite, non-restartable sequence of audio chunks.
type AudioStream interface {
	// Chunks yields audio chunks in generation order. A mid-stream failure
	// yields a nil chunk with an error wrapping [ErrGateway] and ends the
	// sequence; chunks yielded before the failure stand.
	Chunks(ctx context.Context) iter.Seq2[[]byte, error]
}

// AudioGenerator produces a streamed spoken answer grounded in the given
// context passages.
type AudioGenerator interface {
	// GenerateAudioStream opens a streaming generation session. Errors
	// before the first chunk wrap [ErrGateway].
	GenerateAudioStream(ctx context.Context, query string, contextPassages []string) (AudioStream, error)
}

// SpeechSynthesizer renders marked-up text to audio in one shot.
type SpeechSynthesizer interface {
	// SynthesizeSpeech returns encoded audio bytes. Errors wrap [ErrGateway].
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

// ModelGateway is the full set of generation capabilities a query cycle may
// use.
type ModelGateway interface {
	IntentClassifier
	TextGenerator
	AudioGenerator
}
