package logpipeline

import (
	"context"
	"log"
	"time"
)

const (
	batchSize         = 50
	flushInterval     = 1000 * time.Millisecond
	maxUpdateRequeues = 5
)

// Consumer is the single background reader draining a Producer's queue.
// Create items are applied first within a flush so same-cycle updates for a
// just-created record can resolve their tempLogId immediately.
type Consumer struct {
	producer *Producer
	repo     Repository

	tempToReal map[int64]int64

	done chan struct{}
}

func NewConsumer(producer *Producer, repo Repository) *Consumer {
	return &Consumer{
		producer:   producer,
		repo:       repo,
		tempToReal: make(map[int64]int64),
		done:       make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled, then performs one final
// flush and returns. Intended to be launched in its own goroutine from
// cmd/server/main.go and joined via Done() during shutdown.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.flush(context.Background())
			return
		case <-c.producer.notify:
			c.flush(ctx)
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

// Done reports when Run has finished its final drain.
func (c *Consumer) Done() <-chan struct{} { return c.done }

func (c *Consumer) flush(ctx context.Context) {
	items := c.producer.drain()
	if len(items) == 0 {
		return
	}

	var deferred []queueItem
	for _, item := range items {
		if item.op != opCreate {
			continue
		}
		if err := c.repo.Create(ctx, item.log); err != nil {
			log.Printf("[logpipeline] create failed for tempLogId=%d: %v", item.tempLogID, err)
			continue
		}
		c.tempToReal[item.tempLogID] = item.log.ID
	}

	for _, item := range items {
		if item.op != opUpdate {
			continue
		}
		realID, ok := c.tempToReal[item.tempLogID]
		if !ok {
			item.retries++
			if item.retries <= maxUpdateRequeues {
				deferred = append(deferred, item)
			} else {
				log.Printf("[logpipeline] dropping update for tempLogId=%d: no create mapping after %d attempts", item.tempLogID, item.retries)
			}
			continue
		}
		if err := c.repo.Update(ctx, realID, item.fields); err != nil {
			log.Printf("[logpipeline] update failed for realLogId=%d: %v", realID, err)
		}
		if item.terminal {
			delete(c.tempToReal, item.tempLogID)
		}
	}

	if len(deferred) > 0 {
		c.producer.requeue(deferred)
	}
}
