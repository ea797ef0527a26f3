package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/terratale/terratale/core/events"
	"github.com/terratale/terratale/core/session"
)

// ConnectionSupervisor drives the query loop of a single client connection.
// Supervisors of different connections share the orchestrator but nothing
// else, so a failing connection never affects its neighbours.
type ConnectionSupervisor struct {
	orchestrator *Orchestrator
}

func NewConnectionSupervisor(orchestrator *Orchestrator) *ConnectionSupervisor {
	return &ConnectionSupervisor{orchestrator: orchestrator}
}

// Serve receives queries and runs one cycle per query until the peer
// disconnects or ctx is cancelled. Malformed queries are rejected
// individually; the loop keeps serving.
func (s *ConnectionSupervisor) Serve(ctx context.Context, channel session.Channel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer channel.Close()

	done := withContextCancelHook(ctx, func() { _ = channel.Close() })
	defer close(done)

	for {
		query, err := channel.ReceiveQuery(ctx)
		if err != nil {
			if errors.Is(err, session.ErrMalformedQuery) {
				logger.WarnContext(ctx, "rejected malformed query", "error", err)
				if sendErr := channel.Send(events.NewError(err.Error())); sendErr != nil {
					return nil
				}
				continue
			}
			if errors.Is(err, session.ErrDisconnected) {
				return nil
			}
			return fmt.Errorf("failed to receive query: %w", err)
		}

		if err := s.orchestrator.Handle(ctx, query, channel); err != nil {
			if errors.Is(err, session.ErrDisconnected) {
				return nil
			}
			logger.ErrorContext(ctx, "query cycle completed with task failures", "error", err)
		}
	}
}
