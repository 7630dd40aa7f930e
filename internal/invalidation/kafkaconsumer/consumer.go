// Package kafkaconsumer drops cached state for datasets named in update
// events read from Kafka.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/chomoku/kyoto-hexmap/internal/core/observability"
	"github.com/chomoku/kyoto-hexmap/internal/invalidation"
	mylog "github.com/chomoku/kyoto-hexmap/internal/logger"
)

// ResultInvalidator drops cached renders of one dataset key.
type ResultInvalidator interface {
	Invalidate(ctx context.Context, dataset string) (int, error)
}

// DatasetEvictor drops a loaded dataset so the next render reads the file.
type DatasetEvictor interface {
	Evict(path string) bool
}

// HotnessForgetter drops the popularity history of a dataset's centers.
type HotnessForgetter interface {
	ForgetDataset(dataset string) int
}

// Resolver maps a dataset name to its file and the dataset keys whose
// cached renders depend on it.
type Resolver func(name string) (path string, keys []string, ok bool)

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	results ResultInvalidator
	loaded  DatasetEvictor
	resolve Resolver
	hot     HotnessForgetter
}

// New wires a consumer. results may be nil when no render cache is
// configured.
func New(cfg Config, logger *slog.Logger, results ResultInvalidator, loaded DatasetEvictor, resolve Resolver) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		logger:  logger,
		results: results,
		loaded:  loaded,
		resolve: resolve,
	}
}

// ForgetHotness makes delete events also drop the hot centers of the
// deleted dataset.
func (c *Consumer) ForgetHotness(h HotnessForgetter) { c.hot = h }

// Start consumes update events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.loaded == nil || c.resolve == nil {
		return errors.New("kafkaconsumer: missing dependencies (evictor/resolver)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	handler := &groupHandler{process: c.ProcessOne, logger: c.logger}

	c.logger.InfoContext(ctx, "dataset invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "dataset invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				obs.IncKafkaConsumerError("consume")
				c.logger.ErrorContext(ctx, "kafka consumer error",
					"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "err", err)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne handles a single event. Undecodable and invalid events are
// logged and skipped; only a failing render cache delete is returned so the
// message is retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.logger.WarnContext(ctx, "skipping undecodable event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("invalid")
		c.logger.WarnContext(ctx, "skipping invalid event", "offset", msg.Offset, "err", err)
		return nil
	}

	path, keys, ok := c.resolve(ev.Dataset)
	if !ok {
		obs.ObserveInvalidation(ev.Op, 0, time.Since(start), nil)
		c.logger.DebugContext(ctx, "event for unknown dataset (skipping)", "dataset", ev.Dataset)
		return nil
	}
	ctx = mylog.WithDataset(ctx, ev.Dataset)

	evicted := c.loaded.Evict(path)

	deleted := 0
	if c.results != nil {
		for _, key := range keys {
			n, err := c.results.Invalidate(ctx, key)
			if err != nil {
				obs.IncKafkaConsumerError("cache_del")
				obs.ObserveInvalidation(ev.Op, deleted, time.Since(start), err)
				return fmt.Errorf("invalidate renders of %s: %w", key, err)
			}
			deleted += n
		}
	}

	forgotten := 0
	if ev.Op == "delete" && c.hot != nil {
		for _, key := range keys {
			forgotten += c.hot.ForgetDataset(key)
		}
	}

	obs.ObserveInvalidation(ev.Op, deleted, time.Since(start), nil)
	c.logger.InfoContext(ctx, "dataset invalidated",
		"op", ev.Op, "evicted", evicted, "renders", deleted, "hot_centers", forgotten, "source", ev.Source)
	return nil
}
