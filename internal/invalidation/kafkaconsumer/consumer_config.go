package kafkaconsumer

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

func FromConfig(c config.InvalidationCfg) Config {
	return Config{
		Brokers:             splitCSV(c.Brokers),
		Topic:               c.Topic,
		GroupID:             c.GroupID,
		SessionTimeout:      c.SessionTimeout,
		Heartbeat:           c.Heartbeat,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: c.FromOldest,
	}
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
