package orchestration

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/terratale/terratale/core/events"
	"github.com/terratale/terratale/core/gateway"
	"github.com/terratale/terratale/core/knowledge"
	"github.com/terratale/terratale/core/session"
)

func TestQuestionCycleEmitsOneTextAndOneAudioEnd(t *testing.T) {
	channel := newChannelStub()
	orchestrator := NewOrchestrator(
		&gatewayStub{
			intent: gateway.IntentQuestion,
			text:   "a written answer",
			stream: chunkStream{chunks: [][]byte{{0x0a}, {0x0b}, {0x0c}}},
		},
		retrieverStub{passages: []string{"passage"}},
		searcherStub{},
	)

	if err := orchestrator.Handle(context.Background(), "what is a manatee?", channel); err != nil {
		t.Fatalf("expected cycle to succeed, got %v", err)
	}

	if count := channel.countKind(events.KindText); count != 1 {
		t.Fatalf("expected exactly one text event, got %d", count)
	}
	if count := channel.countKind(events.KindAudioEnd); count != 1 {
		t.Fatalf("expected exactly one audio end event, got %d", count)
	}
	if count := channel.countKind(events.KindError); count != 0 {
		t.Fatalf("expected no error events, got %d", count)
	}

	chunks := channel.audioChunks()
	if len(chunks) != 3 {
		t.Fatalf("expected 3 audio chunks, got %d", len(chunks))
	}
	for i, want := range []byte{0x0a, 0x0b, 0x0c} {
		if chunks[i][0] != want {
			t.Fatalf("expected chunk %d to carry %#x, got %#x", i, want, chunks[i][0])
		}
	}
}

func TestAudioChunksPrecedeAudioEnd(t *testing.T) {
	channel := newChannelStub()
	orchestrator := NewOrchestrator(
		&gatewayStub{
			intent: gateway.IntentQuestion,
			text:   "answer",
			stream: chunkStream{chunks: [][]byte{{0x01}, {0x02}}},
		},
		retrieverStub{},
		searcherStub{},
	)

	if err := orchestrator.Handle(context.Background(), "q", channel); err != nil {
		t.Fatalf("expected cycle to succeed, got %v", err)
	}

	sawEnd := false
	for _, event := range channel.events() {
		switch event.Kind() {
		case events.KindAudioEnd:
			sawEnd = true
		case events.KindAudioChunk:
			if sawEnd {
				t.Fatal("audio chunk delivered after audio end")
			}
		}
	}
	if !sawEnd {
		t.Fatal("expected an audio end event")
	}
}

func TestDescriptionCycleEmitsOnlyImageSearchResults(t *testing.T) {
	channel := newChannelStub()
	orchestrator := NewOrchestrator(
		&gatewayStub{intent: gateway.IntentDescription},
		retrieverStub{},
		searcherStub{results: []knowledge.ImageResult{
			{ID: "img-1", URL: "https://example.com/1.jpg", Description: "a manatee", Label: "manatee", Score: 0.92},
			{ID: "img-2", URL: "https://example.com/2.jpg", Description: "a mangrove", Label: "mangrove", Score: 0.51},
		}},
	)

	if err := orchestrator.Handle(context.Background(), "show me a manatee", channel); err != nil {
		t.Fatalf("expected cycle to succeed, got %v", err)
	}

	recorded := channel.events()
	if len(recorded) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(recorded))
	}
	results, ok := recorded[0].(events.ImageSearchResults)
	if !ok {
		t.Fatalf("expected image search results, got %s", recorded[0].Kind())
	}
	if len(results.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results.Hits))
	}
	if results.Hits[0].ID != "img-1" || results.Hits[0].Score != 0.92 {
		t.Fatalf("expected first hit to stay first, got %+v", results.Hits[0])
	}
}

func TestClassificationFailureDefaultsToQuestion(t *testing.T) {
	channel := newChannelStub()
	orchestrator := NewOrchestrator(
		&gatewayStub{
			intentErr: errors.New("classifier unreachable"),
			text:      "answer",
			stream:    chunkStream{chunks: [][]byte{{0x01}}},
		},
		retrieverStub{},
		searcherStub{},
	)

	if err := orchestrator.Handle(context.Background(), "q", channel); err != nil {
		t.Fatalf("expected cycle to succeed despite classification failure, got %v", err)
	}

	if count := channel.countKind(events.KindText); count != 1 {
		t.Fatalf("expected fallback to question intent with one text event, got %d", count)
	}
	if count := channel.countKind(events.KindAudioEnd); count != 1 {
		t.Fatalf("expected one audio end event, got %d", count)
	}
}

func TestTextFailureDoesNotBlockAudio(t *testing.T) {
	channel := newChannelStub()
	orchestrator := NewOrchestrator(
		&gatewayStub{
			intent:  gateway.IntentQuestion,
			textErr: fmt.Errorf("quota exceeded: %w", gateway.ErrGateway),
			stream:  chunkStream{chunks: [][]byte{{0x01}, {0x02}}},
		},
		retrieverStub{},
		searcherStub{},
	)

	err := orchestrator.Handle(context.Background(), "q", channel)
	if err == nil {
		t.Fatal("expected the text failure to be reported")
	}
	if errors.Is(err, session.ErrDisconnected) {
		t.Fatalf("expected a task failure, not a disconnect, got %v", err)
	}

	if count := channel.countKind(events.KindText); count != 0 {
		t.Fatalf("expected no text event, got %d", count)
	}
	if count := channel.countKind(events.KindError); count != 1 {
		t.Fatalf("expected exactly one error event substituting the text event, got %d", count)
	}
	if count := channel.countKind(events.KindAudioChunk); count < 1 {
		t.Fatal("expected audio chunks to be delivered despite the text failure")
	}
	if count := channel.countKind(events.KindAudioEnd); count != 1 {
		t.Fatalf("expected one audio end event, got %d", count)
	}
}

func TestMidStreamAudioFailureKeepsEarlierChunks(t *testing.T) {
	channel := newChannelStub()
	orchestrator := NewOrchestrator(
		&gatewayStub{
			intent: gateway.IntentQuestion,
			text:   "answer",
			stream: chunkStream{
				chunks:  [][]byte{{0x01}},
				failure: fmt.Errorf("stream cut short: %w", gateway.ErrGateway),
			},
		},
		retrieverStub{},
		searcherStub{},
	)

	if err := orchestrator.Handle(context.Background(), "q", channel); err == nil {
		t.Fatal("expected the mid-stream failure to be reported")
	}

	if count := channel.countKind(events.KindAudioChunk); count != 1 {
		t.Fatalf("expected the chunk emitted before the failure to stand, got %d", count)
	}
	if count := channel.countKind(events.KindError); count != 1 {
		t.Fatalf("expected exactly one error event, got %d", count)
	}
	if count := channel.countKind(events.KindAudioEnd); count != 1 {
		t.Fatalf("expected exactly one audio end event, got %d", count)
	}
	if count := channel.countKind(events.KindText); count != 1 {
		t.Fatalf("expected the text task to be unaffected, got %d text events", count)
	}
}

func TestDisconnectMidCycleCancelsTasks(t *testing.T) {
	channel := newChannelStub()
	channel.failAfter = 1

	orchestrator := NewOrchestrator(
		&gatewayStub{
			intent: gateway.IntentQuestion,
			textFunc: func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			stream: endlessStream{},
		},
		retrieverStub{},
		searcherStub{},
	)

	handleDone := make(chan error, 1)
	go func() {
		handleDone <- orchestrator.Handle(context.Background(), "q", channel)
	}()

	var err error
	select {
	case err = <-handleDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnected cycle to terminate")
	}

	if !errors.Is(err, session.ErrDisconnected) {
		t.Fatalf("expected the disconnect to be reported, got %v", err)
	}

	recorded := channel.events()
	if len(recorded) != 1 {
		t.Fatalf("expected only the one successful send, got %d events", len(recorded))
	}
	if recorded[0].Kind() != events.KindAudioChunk {
		t.Fatalf("expected the successful send to be an audio chunk, got %s", recorded[0].Kind())
	}
}

func TestServeSkipsMalformedQueriesAndStopsOnDisconnect(t *testing.T) {
	channel := newChannelStub()
	channel.queueReceiveError(fmt.Errorf("bad frame: %w", session.ErrMalformedQuery))
	channel.queueReceiveQuery("what is a manatee?")

	orchestrator := NewOrchestrator(
		&gatewayStub{
			intent: gateway.IntentQuestion,
			text:   "answer",
			stream: chunkStream{chunks: [][]byte{{0x01}}},
		},
		retrieverStub{},
		searcherStub{},
	)
	supervisor := NewConnectionSupervisor(orchestrator)

	if err := supervisor.Serve(context.Background(), channel); err != nil {
		t.Fatalf("expected serve to finish cleanly on disconnect, got %v", err)
	}

	if count := channel.countKind(events.KindError); count != 1 {
		t.Fatalf("expected one error event for the malformed query, got %d", count)
	}
	if count := channel.countKind(events.KindText); count != 1 {
		t.Fatalf("expected the following query to be served, got %d text events", count)
	}
	if !channel.isClosed() {
		t.Fatal("expected the channel to be closed after serving")
	}
}

func TestServeStopsWhenContextCancelled(t *testing.T) {
	channel := newChannelStub()
	channel.blockReceives = true

	supervisor := NewConnectionSupervisor(NewOrchestrator(&gatewayStub{}, retrieverStub{}, searcherStub{}))

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- supervisor.Serve(ctx, channel)
	}()

	cancel()

	select {
	case err := <-serveDone:
		if err != nil {
			t.Fatalf("expected serve to finish cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for serve to observe cancellation")
	}

	if !channel.isClosed() {
		t.Fatal("expected the channel to be closed after cancellation")
	}
}

type gatewayStub struct {
	intent    gateway.Intent
	intentErr error

	text     string
	textErr  error
	textFunc func(ctx context.Context) (string, error)

	stream    gateway.AudioStream
	streamErr error
}

func (s *gatewayStub) ClassifyIntent(_ context.Context, _ string) (gateway.Intent, error) {
	if s.intentErr != nil {
		return "", s.intentErr
	}
	return s.intent, nil
}

func (s *gatewayStub) GenerateText(ctx context.Context, _ string, _ []string) (string, error) {
	if s.textFunc != nil {
		return s.textFunc(ctx)
	}
	return s.text, s.textErr
}

func (s *gatewayStub) GenerateAudioStream(_ context.Context, _ string, _ []string) (gateway.AudioStream, error) {
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	return s.stream, nil
}

type chunkStream struct {
	chunks  [][]byte
	failure error
}

func (s chunkStream) Chunks(_ context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, chunk := range s.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if s.failure != nil {
			yield(nil, s.failure)
		}
	}
}

type endlessStream struct{}

func (endlessStream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for ctx.Err() == nil {
			if !yield([]byte{0x01}, nil) {
				return
			}
		}
	}
}

type retrieverStub struct {
	passages []string
	err      error
}

func (s retrieverStub) RetrieveContext(_ context.Context, _ string) ([]string, error) {
	return s.passages, s.err
}

type searcherStub struct {
	results []knowledge.ImageResult
	err     error
}

func (s searcherStub) SearchImages(_ context.Context, _ string) ([]knowledge.ImageResult, error) {
	return s.results, s.err
}

type receiveStep struct {
	query string
	err   error
}

// channelStub records sent events and replays a scripted receive queue. An
// exhausted queue reports a disconnect.
type channelStub struct {
	mu            sync.Mutex
	sent          []events.Event
	receiveQueue  []receiveStep
	failAfter     int
	blockReceives bool
	closed        bool
}

func newChannelStub() *channelStub {
	return &channelStub{failAfter: -1}
}

func (c *channelStub) Send(event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.failAfter >= 0 && len(c.sent) >= c.failAfter) {
		return fmt.Errorf("peer gone: %w", session.ErrDisconnected)
	}
	c.sent = append(c.sent, event)
	return nil
}

func (c *channelStub) ReceiveQuery(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.blockReceives {
		c.mu.Unlock()
		<-ctx.Done()
		return "", fmt.Errorf("connection closed: %w", session.ErrDisconnected)
	}
	defer c.mu.Unlock()

	if c.closed || len(c.receiveQueue) == 0 {
		return "", fmt.Errorf("connection closed: %w", session.ErrDisconnected)
	}
	step := c.receiveQueue[0]
	c.receiveQueue = c.receiveQueue[1:]
	return step.query, step.err
}

func (c *channelStub) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *channelStub) queueReceiveQuery(query string) {
	c.receiveQueue = append(c.receiveQueue, receiveStep{query: query})
}

func (c *channelStub) queueReceiveError(err error) {
	c.receiveQueue = append(c.receiveQueue, receiveStep{err: err})
}

func (c *channelStub) events() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	recorded := make([]events.Event, len(c.sent))
	copy(recorded, c.sent)
	return recorded
}

func (c *channelStub) countKind(kind events.Kind) int {
	count := 0
	for _, event := range c.events() {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func (c *channelStub) audioChunks() [][]byte {
	var chunks [][]byte
	for _, event := range c.events() {
		if chunk, ok := event.(events.AudioChunk); ok {
			chunks = append(chunks, chunk.Audio)
		}
	}
	return chunks
}

func (c *channelStub) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
