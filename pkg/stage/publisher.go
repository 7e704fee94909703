package stage

import (
	"context"

	"github.com/jzx17/gometer/pkg/stats"
	"github.com/jzx17/gometer/pkg/types"
)

// Publisher exposes statistics outside the pipeline
type Publisher interface {
	// Publish receives the statistics of one task after every timer of that task
	Publish(snapshot stats.Snapshot)
	// Reset receives the last statistics of every task before they are cleared
	Reset(final []stats.Snapshot)
}

// PublisherStage is a StatsStage that hands each updated snapshot to a Publisher
type PublisherStage struct {
	*StatsStage
	publisher Publisher
}

var _ types.Stage = (*PublisherStage)(nil)

// NewPublisherStage creates a publishing statistics stage
func NewPublisherStage(publisher Publisher) (*PublisherStage, error) {
	if publisher == nil {
		return nil, types.ErrNilPublisher
	}
	return &PublisherStage{
		StatsStage: NewStatsStage(),
		publisher:  publisher,
	}, nil
}

// Name implements types.Named
func (s *PublisherStage) Name() string { return "stats-publisher" }

// Process updates the statistics and publishes the task snapshot
func (s *PublisherStage) Process(ctx context.Context, m types.Measurement) error {
	if err := s.StatsStage.Process(ctx, m); err != nil {
		return err
	}
	t, _ := asTimer(m)
	if snap, ok := s.Snapshot(t.Task()); ok {
		s.publisher.Publish(snap)
	}
	return nil
}

// Reset clears the statistics and passes their final values to the publisher
func (s *PublisherStage) Reset() {
	final := s.AllSnapshots()
	s.StatsStage.Reset()
	s.publisher.Reset(final)
}
