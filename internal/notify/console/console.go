// Package console writes broadcast notifications to the structured log.
package console

import (
	"context"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/cbwatch/internal/dispatch"
)

// Notifier logs each notification at info level. It never fails.
type Notifier struct {
	logger log.Logger
}

func New(logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{logger: logger}
}

func (n *Notifier) Post(ctx context.Context, note dispatch.Notification) error {
	n.logger.Info(ctx, "broadcast notification",
		"notification_id", note.ID,
		"message_id", note.MessageID,
		"title", note.Title,
		"title_key", note.TitleKey,
		"presentation", note.Presentation.String(),
		"body", note.Body,
		"delivery_time", note.DeliveryTime,
	)
	return nil
}
