package channel

import (
	"context"
	"log/slog"

	"chatbridge/internal/domain"
)

var (
	_ domain.Replier  = (*Line)(nil)
	_ domain.Replier  = (*Telegram)(nil)
	_ domain.Platform = (*Line)(nil)
	_ domain.Platform = (*Telegram)(nil)
)

// routeReplies delivers every outbound reply addressed to name through r.
// Delivery failures are logged; the bus has no way to report them upstream.
func routeReplies(bus domain.MessageBus, name string, r domain.Replier, logger *slog.Logger) {
	bus.OnOutbound(name, func(reply domain.Reply) {
		if err := r.Reply(context.Background(), reply.ReplyToken, reply.Text); err != nil {
			logger.Error("reply failed", "channel", name, "event_id", reply.EventID, "err", err)
		}
	})
}
