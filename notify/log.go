package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogGateway records deliveries in the log instead of sending them. Placeholder values
// are not logged, only their keys.
type LogGateway struct {
	log *zap.Logger
}

// NewLogGateway returns a LogGateway writing to log.
func NewLogGateway(log *zap.Logger) *LogGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogGateway{log: log}
}

// Send implements Gateway.
func (g *LogGateway) Send(_ context.Context, msg Message) error {
	keys := make([]string, 0, len(msg.Placeholders))
	for k := range msg.Placeholders {
		keys = append(keys, k)
	}
	g.log.Info("notification dispatched",
		zap.String("channel", string(msg.Channel)),
		zap.String("template", msg.Template),
		zap.Int64("identity_id", msg.Recipient.IdentityID),
		zap.Strings("placeholders", keys),
	)
	return nil
}
