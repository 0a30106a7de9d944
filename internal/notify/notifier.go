// Package notify announces stored articles to downstream consumers.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Notifier publishes an ArticleEvent per stored article. Publish failures are
// logged and never fail the job.
type Notifier struct {
	pub    scrape.Publisher
	topic  string
	clock  scrape.Clock
	logger *zap.Logger
}

// New builds a notifier. A nil publisher or empty topic disables it.
func New(pub scrape.Publisher, topic string, clock scrape.Clock, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, topic: topic, clock: clock, logger: logger.Named("notify")}
}

// ArticleStored publishes the event for article.
func (n *Notifier) ArticleStored(ctx context.Context, article scrape.Article) {
	if n == nil || n.pub == nil || n.topic == "" {
		return
	}
	event := scrape.ArticleEvent{
		ArticleID:     article.ID,
		URL:           article.URL,
		AudienceScope: article.AudienceScope,
		StoredAt:      n.clock.Now().UTC(),
	}
	id, err := n.pub.Publish(ctx, n.topic, event)
	if err != nil {
		n.logger.Warn("article event publish failed",
			zap.Int64("article_id", article.ID),
			zap.String("topic", n.topic),
			zap.Error(err),
		)
		return
	}
	n.logger.Debug("article event published", zap.Int64("article_id", article.ID), zap.String("message_id", id))
}
