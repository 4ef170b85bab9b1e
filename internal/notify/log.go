package notify

import (
	"context"

	"github.com/rxtech-lab/argo-signals/internal/alert"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"go.uber.org/zap"
)

// LogChannel writes alerts to the logger instead of delivering them. It backs dry runs.
type LogChannel struct {
	log *logger.Logger
}

var _ Channel = (*LogChannel)(nil)

func NewLogChannel(log *logger.Logger) *LogChannel {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string {
	return "log"
}

func (c *LogChannel) Send(_ context.Context, a types.Alert) (Response, error) {
	c.log.Info("Alert",
		zap.String("ticker", a.Ticker),
		zap.String("event", string(a.EventType)),
		zap.String("price", alert.FormatPrice(a.Price)),
		zap.String("when", a.When),
		zap.String("explain", a.Explain),
	)

	return Response{Code: 200, Body: "logged"}, nil
}
