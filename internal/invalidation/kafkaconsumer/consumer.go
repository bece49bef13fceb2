// Package kafkaconsumer applies cache flush events read from Kafka.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/hazard-aggregator/internal/invalidation"
	mylog "github.com/mohammed-shakir/hazard-aggregator/internal/logger"
	"github.com/mohammed-shakir/hazard-aggregator/internal/mapper"
)

// Flusher is a cache that can be moved to a newer epoch; *ttlcache.Cache
// satisfies it.
type Flusher interface {
	Layer() string
	Advance(epoch int64) bool
}

type HotnessResetter interface {
	Reset(areas ...string)
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	caches []Flusher
	hot    HotnessResetter
	mapper mapper.Interface
	res    int
}

// New builds a consumer for caches. hot and m may be nil, in which case area
// events only flush the caches.
func New(cfg Config, logger *slog.Logger, caches []Flusher, hot HotnessResetter, m mapper.Interface, res int) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		caches: caches,
		hot:    hot,
		mapper: m,
		res:    res,
	}
}

// Start consumes flush events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.caches) == 0 {
		return errors.New("kafkaconsumer: no caches to flush")
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

	ctx = mylog.WithComponent(ctx, "invalidation")

	c.logger.InfoContext(ctx, "cache invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "cache invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, c); err != nil {
				c.logger.ErrorContext(ctx, "kafka consumer error",
					"err", err, "brokers", c.cfg.Brokers, "topic", c.cfg.Topic)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim applies messages in partition order, marking each one only
// after it has been handled.
func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.ProcessOne(ctx, msg); err != nil {
				return fmt.Errorf("flush event %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}

// ProcessOne applies a single flush event. Undecodable or invalid events are
// logged and skipped so they never block the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.ObserveInvalidation("unknown", "decode")
		c.logger.WarnContext(ctx, "skipping undecodable flush event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.ObserveInvalidation(ev.Layer, "invalid")
		c.logger.WarnContext(ctx, "skipping invalid flush event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	epoch := ev.Epoch()
	applied := 0
	for _, fl := range c.caches {
		if !ev.Targets(fl.Layer()) {
			continue
		}
		if fl.Advance(epoch) {
			applied++
			obs.ObserveInvalidation(fl.Layer(), "applied")
		} else {
			obs.ObserveInvalidation(fl.Layer(), "stale")
		}
	}

	reset := c.resetArea(ev.Area)

	c.logger.InfoContext(ctx, "cache flush applied",
		"layer", ev.Layer, "epoch", epoch, "caches", applied, "areas_reset", reset, "reason", ev.Reason)
	return nil
}

func (c *Consumer) resetArea(a *invalidation.Area) int {
	if a == nil || c.hot == nil || c.mapper == nil {
		return 0
	}
	areas, err := mapper.Areas(c.mapper, a.Lat, a.Lon, c.res)
	if err != nil {
		return 0
	}
	c.hot.Reset(areas...)
	return len(areas)
}
