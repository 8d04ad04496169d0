package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/deeplyinc/homeaudio-go/internal/detection"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
	"github.com/deeplyinc/homeaudio-go/internal/observability/metrics"
)

// Reasons recorded when a result is not published.
const (
	skipBelowThreshold = "below_threshold"
	skipCooldown       = "cooldown"
	skipQueueFull      = "queue_full"
	skipDisconnected   = "disconnected"
	skipStopped        = "stopped"
)

const defaultQueueSize = 64

// PublisherConfig controls which results are published.
type PublisherConfig struct {
	Topic     string
	Node      string        // included in every payload
	Threshold float32       // minimum confidence
	Cooldown  time.Duration // per-label repeat suppression, 0 to disable
	QueueSize int
}

// Publisher forwards detection results to MQTT off the inference path.
// Publish only filters and enqueues; Run performs the network I/O.
type Publisher struct {
	client  Client
	config  PublisherConfig
	metrics metricsRecorder
	log     logger.Logger

	recent *cache.Cache // labels published within the cooldown
	queue  chan detection.Result

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a publisher. A nil m disables metrics.
func NewPublisher(client Client, config PublisherConfig, m *metrics.MQTTMetrics) *Publisher {
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	config.Topic = strings.TrimSuffix(config.Topic, "/")

	p := &Publisher{
		client:  client,
		config:  config,
		metrics: nopMetrics{},
		log:     GetLogger(),
		queue:   make(chan detection.Result, config.QueueSize),
	}
	if m != nil {
		p.metrics = m
	}
	if config.Cooldown > 0 {
		// No janitor: expired entries are replaced on the next Add.
		p.recent = cache.New(config.Cooldown, 0)
	}
	return p
}

// Publish implements detector.ResultSink. It never blocks.
func (p *Publisher) Publish(r detection.Result) {
	if r.Confidence < p.config.Threshold {
		p.metrics.RecordSkipped(skipBelowThreshold)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.RecordSkipped(skipStopped)
		return
	}

	label := r.Label.String()
	if p.recent != nil {
		if err := p.recent.Add(label, struct{}{}, cache.DefaultExpiration); err != nil {
			p.metrics.RecordSkipped(skipCooldown)
			return
		}
	}

	select {
	case p.queue <- r:
	default:
		// The cooldown only applies to results that were actually queued.
		if p.recent != nil {
			p.recent.Delete(label)
		}
		p.metrics.RecordSkipped(skipQueueFull)
		p.log.Warn("MQTT publish queue full, dropping detection",
			logger.String("label", label))
	}
}

// Topic returns the topic a result is published to.
func (p *Publisher) Topic(r detection.Result) string {
	return p.config.Topic + "/" + strings.ToLower(r.Label.String())
}

// Run publishes queued results until ctx is done. Results still queued at
// that point are discarded.
func (p *Publisher) Run(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-p.queue:
			p.send(ctx, r)
		}
	}
}

func (p *Publisher) send(ctx context.Context, r detection.Result) {
	if !p.client.IsConnected() {
		p.metrics.RecordSkipped(skipDisconnected)
		p.log.Debug("MQTT not connected, dropping detection",
			logger.String("label", r.Label.String()))
		return
	}

	payload, err := json.Marshal(NewEventDTO(r, p.config.Node))
	if err != nil {
		p.log.Error("Failed to encode detection", logger.Error(err))
		return
	}

	topic := p.Topic(r)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		p.log.Warn("Failed to publish detection",
			logger.String("topic", topic),
			logger.Error(err))
		return
	}
	p.log.Debug("Published detection",
		logger.String("topic", topic),
		logger.Float32("confidence", r.Confidence))
}
