// Package orchestration runs the per-query response cycle: it routes a query
// by intent and fans it out to independent generation tasks whose framed
// events are multiplexed back onto the client's session channel.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/terratale/terratale/core/events"
	"github.com/terratale/terratale/core/gateway"
	"github.com/terratale/terratale/core/knowledge"
	"github.com/terratale/terratale/core/session"
)

const (
	defaultCallTimeout        = 60 * time.Second
	defaultAudioStreamTimeout = 120 * time.Second
)

// Orchestrator fans a single query out to its generation tasks and joins
// them. One instance is shared across connections; all per-cycle state lives
// on the stack of Handle.
type Orchestrator struct {
	gateway   gateway.ModelGateway
	retriever knowledge.ContextRetriever
	images    knowledge.ImageSearcher

	callTimeout        time.Duration
	audioStreamTimeout time.Duration
}

type OrchestratorOption func(*Orchestrator)

// WithCallTimeout bounds classification, retrieval and text generation calls.
func WithCallTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.callTimeout = timeout
		}
	}
}

// WithAudioStreamTimeout bounds a full audio generation stream.
func WithAudioStreamTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.audioStreamTimeout = timeout
		}
	}
}

func NewOrchestrator(
	modelGateway gateway.ModelGateway,
	retriever knowledge.ContextRetriever,
	images knowledge.ImageSearcher,
	opts ...OrchestratorOption,
) *Orchestrator {
	orchestrator := &Orchestrator{
		gateway:   modelGateway,
		retriever: retriever,
		images:    images,

		callTimeout:        defaultCallTimeout,
		audioStreamTimeout: defaultAudioStreamTimeout,
	}
	for _, opt := range opts {
		opt(orchestrator)
	}
	return orchestrator
}

// Handle runs one full query cycle against the channel. A returned error
// reports task failures for logging; unless it wraps
// [session.ErrDisconnected] the channel is still usable for further cycles.
func (o *Orchestrator) Handle(ctx context.Context, query string, channel session.Channel) error {
	ctx, span := tracer.Start(ctx, "handle query cycle")
	defer span.End()

	intent := o.classifyIntent(ctx, query)
	span.SetAttributes(attribute.String("query.intent", string(intent)))

	var err error
	switch intent {
	case gateway.IntentDescription:
		err = o.runImageSearchCycle(ctx, query, channel)
	default:
		err = o.runAnswerCycle(ctx, query, channel)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// classifyIntent is a best-effort routing hint. Any failure falls back to
// the question intent instead of failing the cycle.
func (o *Orchestrator) classifyIntent(ctx context.Context, query string) gateway.Intent {
	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	intent, err := o.gateway.ClassifyIntent(ctx, query)
	if err != nil {
		logger.WarnContext(ctx, "intent classification failed, defaulting to question intent", "error", err)
		return gateway.IntentQuestion
	}
	return intent
}

func (o *Orchestrator) runImageSearchCycle(ctx context.Context, query string, channel session.Channel) error {
	return panicSafeNamedWorker("image search", func(ctx context.Context) error {
		ctx, span := tracer.Start(ctx, "search images")
		defer span.End()

		ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		results, err := o.images.SearchImages(ctx, query)
		if err != nil {
			err = fmt.Errorf("failed to search images: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return reportTaskFailure(channel, err)
		}

		var hits []events.ImageHit
		if err := copier.Copy(&hits, &results); err != nil {
			err = fmt.Errorf("failed to map image search results: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return reportTaskFailure(channel, err)
		}

		if err := channel.Send(events.NewImageSearchResults(hits)); err != nil {
			return fmt.Errorf("failed to send image search results: %w", err)
		}
		return nil
	})(ctx)
}

// runAnswerCycle runs the text and audio tasks concurrently and waits for
// both. A task failure is captured per task and never aborts its sibling; a
// disconnected channel cancels whatever is still in flight.
func (o *Orchestrator) runAnswerCycle(ctx context.Context, query string, channel session.Channel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workerErr error
	workerErrMu := sync.Mutex{}
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()

		if errors.Is(err, session.ErrDisconnected) {
			cancel()
		}
	}

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		addWorkerErr(panicSafeNamedWorker("text answer", func(ctx context.Context) error {
			return o.generateTextAnswer(ctx, query, channel)
		})(ctx))
	}()
	go func() {
		defer wg.Done()
		addWorkerErr(panicSafeNamedWorker("spoken answer", func(ctx context.Context) error {
			return o.generateSpokenAnswer(ctx, query, channel)
		})(ctx))
	}()
	wg.Wait()

	if workerErr != nil {
		return fmt.Errorf("one or more answer tasks failed: %w", workerErr)
	}
	return nil
}

// generateTextAnswer emits exactly one text event, or one error event in its
// place when generation fails.
func (o *Orchestrator) generateTextAnswer(ctx context.Context, query string, channel session.Channel) error {
	ctx, span := tracer.Start(ctx, "generate text answer")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	passages, err := o.retriever.RetrieveContext(ctx, query)
	if err != nil {
		err = fmt.Errorf("failed to retrieve context: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reportTaskFailure(channel, err)
	}

	answer, err := o.gateway.GenerateText(ctx, query, passages)
	if err != nil {
		err = fmt.Errorf("failed to generate text answer: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reportTaskFailure(channel, err)
	}

	if err := channel.Send(events.NewText(answer)); err != nil {
		return fmt.Errorf("failed to send text answer: %w", err)
	}
	return nil
}

// generateSpokenAnswer relays audio chunks in producer order and terminates
// the stream with exactly one audio end event, including after a failure.
// Only a disconnected channel skips the terminator, since nothing can reach
// the peer anymore.
func (o *Orchestrator) generateSpokenAnswer(ctx context.Context, query string, channel session.Channel) error {
	ctx, span := tracer.Start(ctx, "generate spoken answer")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.audioStreamTimeout)
	defer cancel()

	endAudio := func() error {
		if err := channel.Send(events.NewAudioEnd()); err != nil {
			return fmt.Errorf("failed to send audio end: %w", err)
		}
		return nil
	}

	passages, err := o.retriever.RetrieveContext(ctx, query)
	if err != nil {
		err = fmt.Errorf("failed to retrieve context: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Join(reportTaskFailure(channel, err), endAudio())
	}

	stream, err := o.gateway.GenerateAudioStream(ctx, query, passages)
	if err != nil {
		err = fmt.Errorf("failed to open audio stream: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Join(reportTaskFailure(channel, err), endAudio())
	}

	var streamErr error
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			streamErr = fmt.Errorf("audio stream failed mid-generation: %w", err)
			break
		}
		if sendErr := channel.Send(events.NewAudioChunk(chunk)); sendErr != nil {
			return fmt.Errorf("failed to send audio chunk: %w", sendErr)
		}
	}

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, streamErr.Error())
		return errors.Join(reportTaskFailure(channel, streamErr), endAudio())
	}
	return endAudio()
}

// reportTaskFailure converts a task-local failure into a single error event
// for the client. The original failure is always returned for logging.
func reportTaskFailure(channel session.Channel, cause error) error {
	if sendErr := channel.Send(events.NewError(cause.Error())); sendErr != nil {
		return errors.Join(cause, sendErr)
	}
	return cause
}
