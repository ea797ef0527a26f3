// Package events defines the framed event contract between a query cycle
// and its session channel.
//
// Every event carries a wire kind that doubles as the frame's type tag:
//
//   - Text (text): the full written answer for the cycle.
//   - AudioChunk (audio_chunk): one binary chunk of streamed speech, emitted
//     in producer order.
//   - AudioEnd (audio_end): terminal marker for the audio stream, sent
//     exactly once per audio task.
//   - ImageSearchResults (image_search_results): ranked image hits for a
//     description-intent query.
//   - Error (error): a task-local failure, human readable.
//
// Ordering is guaranteed only within a single generation task; events from
// concurrently running tasks of the same cycle interleave freely.
package events
