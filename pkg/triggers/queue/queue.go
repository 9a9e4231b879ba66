// Package queue provides a Redis list backed trigger source.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/triggers"
	"github.com/redis/go-redis/v9"
)

const popTimeout = time.Second

// message is the wire format pushed onto the Redis list by producers.
type message struct {
	Ref    string `json:"ref"`
	Commit string `json:"commit,omitempty"`
}

// Trigger pops push notifications from a Redis list and emits one trigger
// event per message. The configuration requires "url" and "list".
type Trigger struct {
	logger     *slog.Logger
	pipelineID string
	url        string
	list       string
	client     *redis.Client
	callback   triggers.Callback
	done       chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool
}

// NewTrigger creates a queue trigger from a binding configuration.
func NewTrigger(logger *slog.Logger, pipelineID string, config map[string]any) *Trigger {
	url, _ := config["url"].(string)
	list, _ := config["list"].(string)

	return &Trigger{
		logger:     logger.With("module", "trigger:queue", "pipeline_id", pipelineID),
		pipelineID: pipelineID,
		url:        url,
		list:       list,
	}
}

// Validate checks the Redis URL and list name.
func (t *Trigger) Validate() error {
	if t.list == "" {
		return triggers.ErrMissingList
	}

	_, err := redis.ParseURL(t.url)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}

	return nil
}

// Start connects to Redis and begins consuming the list. It does not block.
func (t *Trigger) Start(ctx context.Context, callback triggers.Callback) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	err := t.Validate()
	if err != nil {
		return err
	}

	options, err := redis.ParseURL(t.url)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}

	t.client = redis.NewClient(options)

	err = t.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	t.callback = callback
	t.done = make(chan struct{})
	t.started = true

	t.wg.Add(1)

	go t.consume(ctx)

	t.logger.InfoContext(ctx, "Queue trigger started", "list", t.list)

	return nil
}

// Stop halts consumption and closes the Redis connection.
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return nil
	}

	close(t.done)
	t.wg.Wait()

	err := t.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	t.started = false

	t.logger.InfoContext(ctx, "Queue trigger stopped")

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		values, err := t.client.BLPop(ctx, popTimeout, t.list).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}

			t.logger.ErrorContext(ctx, "Failed to pop from queue", "list", t.list, "error", err)
			continue
		}

		// BLPop returns [list, payload]
		if len(values) < 2 {
			continue
		}

		t.dispatch(ctx, values[1])
	}
}

func (t *Trigger) dispatch(ctx context.Context, payload string) {
	var msg message

	err := json.Unmarshal([]byte(payload), &msg)
	if err != nil {
		t.logger.WarnContext(ctx, "Discarding malformed queue message", "error", err)

		return
	}

	if msg.Ref == "" {
		t.logger.WarnContext(ctx, "Discarding queue message without ref")

		return
	}

	event := models.NewTriggerEvent(msg.Ref, msg.Commit, "queue")

	err = t.callback(ctx, t.pipelineID, event)
	if err != nil {
		t.logger.ErrorContext(ctx, "Queue trigger callback failed", "error", err)
	}
}
