// Package regionevents publishes newly discovered regions to Kafka.
package regionevents

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

type Event struct {
	SessionID string    `json:"session_id,omitempty"`
	OsmID     int64     `json:"osm_id"`
	Name      string    `json:"name"`
	Country   string    `json:"country"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Features  []string  `json:"features,omitempty"`
	BBox      string    `json:"bbox"`
	TS        time.Time `json:"ts"`
}

// EventsFor builds one event per record of a discovery step.
func EventsFor(sessionID string, bb model.BBox, prefs model.Preferences, recs []model.PlaceRecord, now time.Time) []Event {
	feats := make([]string, 0, 4)
	for _, f := range prefs.Features.Features() {
		feats = append(feats, f.String())
	}
	out := make([]Event, 0, len(recs))
	for _, r := range recs {
		out = append(out, Event{
			SessionID: sessionID,
			OsmID:     int64(r.OsmID),
			Name:      r.Name,
			Country:   r.Country,
			Lat:       r.Center.Lat,
			Lon:       r.Center.Lon,
			Features:  feats,
			BBox:      bb.String(),
			TS:        now.UTC(),
		})
	}
	return out
}

type Publisher struct {
	topic   string
	logger  *slog.Logger
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	errDone chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, l *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("regionevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, l), nil
}

// NewWithProducer starts a publisher over an existing producer.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, l *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Publisher{
		topic:   topic,
		logger:  l,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("regionevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(strconv.FormatInt(ev.OsmID, 10)),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Error("regionevents: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish enqueues ev and reports false when the queue is full; it never blocks.
func (p *Publisher) Publish(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	default:
		return false
	}
}

func (p *Publisher) PublishAll(evs []Event) (dropped int) {
	for _, ev := range evs {
		if !p.Publish(ev) {
			dropped++
		}
	}
	if dropped > 0 {
		p.logger.Warn("regionevents: queue full, events dropped", "dropped", dropped)
	}
	return dropped
}

// Close flushes queued events and closes the producer.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("regionevents: close producer: %w", err)
	}
	return nil
}
