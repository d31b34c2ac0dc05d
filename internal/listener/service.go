package listener

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/your-org/essencelink/internal/ports"
)

// Service wires the queue consumer to the message dispatcher.
type Service struct {
	consumer  ports.MessageConsumer
	handle    ports.MessageHandler
	publisher ports.Publisher
	logger    *zap.Logger
}

type Params struct {
	Consumer ports.MessageConsumer
	Handler  ports.MessageHandler
	// Publisher is closed with the service unless it is the consumer itself.
	Publisher ports.Publisher
	Logger    *zap.Logger
}

// NewService constructs a listener Service.
func NewService(p Params) *Service {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Service{
		consumer:  p.Consumer,
		handle:    p.Handler,
		publisher: p.Publisher,
		logger:    p.Logger,
	}
}

// Run consumes messages until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Start to listen for incoming essence events")
	if err := s.consumer.Consume(ctx, s.handle); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	s.logger.Info("stopped listening for essence events")
	return nil
}

// Close releases the publisher and the consumer.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if c, ok := s.publisher.(io.Closer); ok && any(s.publisher) != any(s.consumer) {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if err := s.consumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close consumer: %w", err))
	}
	return errors.Join(errs...)
}
