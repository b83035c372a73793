package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/util"
)

// Message tells a purchaser which code their payment produced.
type Message struct {
	Email   string
	Name    string
	Code    string
	Product string
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier only logs. It stands in when no email provider is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg Message) error {
	log.Info().
		Str("email", util.MaskEmail(msg.Email)).
		Str("code", util.MaskCode(msg.Code)).
		Str("product", msg.Product).
		Msg("email provider not configured, notification logged only")
	return nil
}
