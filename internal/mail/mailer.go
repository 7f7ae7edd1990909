package mail

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message describes one outbound email rendered from a template by the
// external mail collaborator.
type Message struct {
	To         string
	Subject    string
	TemplateID string
	Context    map[string]any
}

// Mailer dispatches templated email. Template rendering and delivery live
// behind this contract.
type Mailer interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

// LogMailer logs instead of delivering. Stands in for the real dispatcher in
// development and tests.
type LogMailer struct {
	logger *zap.Logger
	from   string
}

// NewLogMailer builds the stub dispatcher.
func NewLogMailer(logger *zap.Logger, from string) *LogMailer {
	return &LogMailer{logger: logger, from: from}
}

func (m *LogMailer) Send(_ context.Context, msg Message) (string, error) {
	messageID := uuid.NewString()
	m.logger.Info("mail dispatched",
		zap.String("message_id", messageID),
		zap.String("from", m.from),
		zap.String("to", msg.To),
		zap.String("template", msg.TemplateID),
		zap.String("subject", msg.Subject),
	)
	return messageID, nil
}
