package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Publisher puts a message on a queue.
type Publisher interface {
	Publish(ctx context.Context, queueName string, message interface{}) error
}

// Entry publishes Message on every tick of the cron Spec.
type Entry struct {
	Spec    string
	Message Message
}

const publishTimeout = 10 * time.Second

// Schedule registers every entry on c. Specs use the six-field format with seconds.
func Schedule(c *cron.Cron, p Publisher, queueName string, entries []Entry) error {
	for _, e := range entries {
		if err := e.Message.Validate(); err != nil {
			return fmt.Errorf("schedule %q: %w", e.Spec, err)
		}
		msg := e.Message
		_, err := c.AddFunc(e.Spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := p.Publish(ctx, queueName, msg); err != nil {
				log.WithError(err).WithField("job", msg.String()).Error("failed to publish job")
				return
			}
			log.WithField("job", msg.String()).Info("job published")
		})
		if err != nil {
			return fmt.Errorf("schedule %q: %w", e.Spec, err)
		}
	}
	return nil
}

// DefaultEntries collects each chain and competition shortly after midnight UTC and
// settles each reward an hour later.
func DefaultEntries(chains, competitions []string, rewards map[string][]string) []Entry {
	var entries []Entry
	for _, chain := range chains {
		entries = append(entries, Entry{Spec: "0 5 0 * * *", Message: Message{Type: CollectChain, Chain: chain}})
	}
	for _, slug := range competitions {
		entries = append(entries, Entry{Spec: "0 10 0 * * *", Message: Message{Type: CollectCompetition, Slug: slug}})
		for _, reward := range rewards[slug] {
			entries = append(entries, Entry{Spec: "0 10 1 * * *", Message: Message{Type: SettleReward, Slug: slug, Reward: reward}})
		}
	}
	return entries
}
