package events

import "time"

// Kind is the wire type tag of a framed event.
type Kind string

const (
	KindText               Kind = "text"
	KindAudioChunk         Kind = "audio_chunk"
	KindAudioEnd           Kind = "audio_end"
	KindImageSearchResults Kind = "image_search_results"
	KindError              Kind = "error"
)

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
