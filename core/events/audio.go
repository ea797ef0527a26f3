package events

// AudioChunk carries one binary chunk of streamed speech.
type AudioChunk struct {
	Base
	Audio []byte
}

// NewAudioChunk creates an audio chunk event.
func NewAudioChunk(audio []byte) AudioChunk {
	return AudioChunk{Base: NewBase(KindAudioChunk), Audio: audio}
}

// AudioEnd marks the end of a cycle's audio stream.
type AudioEnd struct{ Base }

// NewAudioEnd creates an audio end event.
func NewAudioEnd() AudioEnd {
	return AudioEnd{Base: NewBase(KindAudioEnd)}
}
