package gemini

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/terratale/terratale/core/gateway"
)

// audioStream drains a streaming generation response and yields its inline
// audio data chunk by chunk.
type audioStream struct {
	responses iter.Seq2[*genai.GenerateContentResponse, error]
}

var _ gateway.AudioStream = (*audioStream)(nil)

func (s *audioStream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for response, err := range s.responses {
			if err != nil {
				yield(nil, fmt.Errorf("%w: audio stream failed: %w", gateway.ErrGateway, err))
				return
			}
			if ctx.Err() != nil {
				yield(nil, fmt.Errorf("%w: audio stream cancelled: %w", gateway.ErrGateway, ctx.Err()))
				return
			}
			if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
				continue
			}
			for _, part := range response.Candidates[0].Content.Parts {
				if part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				if !yield(part.InlineData.Data, nil) {
					return
				}
			}
		}
	}
}
