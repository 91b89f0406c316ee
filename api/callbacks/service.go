package callbacks

import (
	"gigpay-bend/utils/gateway"
	"gigpay-bend/utils/settlement"

	"go.uber.org/zap"
)

// Service represents the Callbacks Service
type Service struct {
	dispatcher *settlement.Dispatcher
	fake       *gateway.Fake
	logger     *zap.Logger
}

// NewCallbacksService returns a new callbacks service. fake is set only
// when the in-memory gateway is in use.
func NewCallbacksService(dispatcher *settlement.Dispatcher, fake *gateway.Fake, logger *zap.Logger) *Service {
	return &Service{dispatcher: dispatcher, fake: fake, logger: logger}
}

// FakeEnabled reports whether the fake gateway routes should be mounted
func (s *Service) FakeEnabled() bool {
	return s.fake != nil
}
