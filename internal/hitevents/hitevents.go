// Package hitevents publishes query events to Kafka so that downstream
// consumers can see which areas people are asking about.
package hitevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type Kind string

const (
	KindDisasters Kind = "disasters"
	KindPOIs      Kind = "pois"
)

type Event struct {
	Kind     Kind      `json:"kind"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	RadiusKm float64   `json:"radius_km,omitempty"`
	Country  string    `json:"country,omitempty"`
	POIKind  string    `json:"poi_kind,omitempty"`
	Area     string    `json:"area,omitempty"`
	Tier     string    `json:"tier,omitempty"`
	Results  int       `json:"results"`
	TS       time.Time `json:"ts"`
}

type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	log     *slog.Logger
	stopped chan struct{}
	errDone chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("hitevents: create async producer: %w", err)
	}
	return newWithProducer(prod, topic, queueSize, log), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		log:     log.With("component", "hitevents"),
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Warn("marshal error", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Kind),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Warn("producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish enqueues ev without blocking. A nil publisher is a no-op.
func (p *Publisher) Publish(ev Event) {
	if p == nil {
		return
	}
	select {
	case p.events <- ev:
	default:
		// queue full: drop rather than block the request path
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("hitevents: close producer: %w", err)
	}
	<-p.errDone
	return nil
}
