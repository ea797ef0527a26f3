// Package deepgram adapts the Deepgram speak API to the one-shot speech
// synthesis contract.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/terratale/terratale/core/gateway"
)

const (
	defaultBaseURL = "https://api.deepgram.com/v1/speak"
	defaultVoice   = "aura-2-thalia-en"
)

// Synthesizer renders text to a single encoded audio payload.
type Synthesizer struct {
	apiKey  string
	voice   string
	baseURL string
	client  *http.Client
}

var _ gateway.SpeechSynthesizer = (*Synthesizer)(nil)

type Option func(*Synthesizer)

func WithVoice(voice string) Option {
	return func(s *Synthesizer) {
		if voice != "" {
			s.voice = voice
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(s *Synthesizer) {
		if baseURL != "" {
			s.baseURL = baseURL
		}
	}
}

func NewSynthesizer(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram api key is required")
	}

	synthesizer := &Synthesizer{
		apiKey:  apiKey,
		voice:   defaultVoice,
		baseURL: defaultBaseURL,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(synthesizer)
	}
	return synthesizer, nil
}

type speakRequestBody struct {
	Text string `json:"text"`
}

func (s *Synthesizer) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(attribute.String("request.voice", s.voice))

	requestBodyBytes, err := json.Marshal(speakRequestBody{Text: text})
	if err != nil {
		err = fmt.Errorf("%w: failed to marshal speak request: %w", gateway.ErrGateway, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	urlValues := url.Values{}
	urlValues.Set("model", s.voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"?"+urlValues.Encode(), bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("%w: failed to create speak request: %w", gateway.ErrGateway, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "token "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: failed to reach speech synthesis backend: %w", gateway.ErrGateway, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("%w: speech synthesis returned non-OK status: %s", gateway.ErrGateway, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("%w: failed to read synthesized audio: %w", gateway.ErrGateway, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return audio, nil
}
