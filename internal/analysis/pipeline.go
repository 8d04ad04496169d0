// Package analysis assembles detectors, audio sources and the optional
// publishing and query services into the realtime and file modes.
package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/detector"
	"github.com/deeplyinc/homeaudio-go/internal/diagnostics"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
	"github.com/deeplyinc/homeaudio-go/internal/mqtt"
	"github.com/deeplyinc/homeaudio-go/internal/observability"
	"github.com/deeplyinc/homeaudio-go/internal/observability/metrics"
)

const (
	// diagnosticsInterval rate limits resource snapshots.
	diagnosticsInterval = time.Minute
	// mqttRetryInterval is the delay between initial broker connection attempts.
	mqttRetryInterval = 30 * time.Second
)

// Pipeline is a detector together with the services that consume its results.
type Pipeline struct {
	settings *conf.Settings
	metrics  *observability.Metrics // may be nil

	Detector   detector.Service
	Publisher  *mqtt.Publisher // nil when MQTT is disabled
	mqttClient mqtt.Client

	diag    *diagnostics.Reporter
	dropped atomic.Uint64

	closeOnce sync.Once
	closer    func() error
}

// NewPipeline builds the detector described by settings. extra options are
// applied after the ones derived from settings.
func NewPipeline(settings *conf.Settings, m *observability.Metrics, extra ...detector.Option) (*Pipeline, error) {
	p := &Pipeline{
		settings: settings,
		metrics:  m,
		diag:     diagnostics.NewReporter(diagnosticsInterval, nil),
	}

	opts := []detector.Option{
		detector.WithDiagnostics(p.diag),
		detector.WithMaxResults(settings.Detector.MaxResults),
		detector.WithSourceID(sourceID(settings)),
	}
	if m != nil {
		opts = append(opts, detector.WithMetrics(m.Detector))
	}

	if settings.MQTT.Enabled {
		var mqttMetrics *metrics.MQTTMetrics
		if m != nil {
			mqttMetrics = m.MQTT
		}
		p.mqttClient = mqtt.NewClient(mqttConfig(settings), mqttMetrics)
		p.Publisher = mqtt.NewPublisher(p.mqttClient, mqtt.PublisherConfig{
			Topic:     settings.MQTT.Topic,
			Node:      settings.Main.Name,
			Threshold: float32(settings.MQTT.Threshold),
			Cooldown:  settings.MQTT.Cooldown,
		}, mqttMetrics)
		opts = append(opts, detector.WithPublisher(p.Publisher))
	}

	opts = append(opts, extra...)
	cfg := settings.DetectorConfig()

	if settings.UseStub {
		stub, err := detector.NewStub(cfg, nil, opts...)
		if err != nil {
			p.diag.Close()
			return nil, err
		}
		p.Detector = stub
		p.closer = func() error { return nil }
		return p, nil
	}

	det, err := detector.New(cfg, opts...)
	if err != nil {
		p.diag.Close()
		return nil, err
	}
	p.Detector = det
	p.closer = det.Close
	return p, nil
}

// sourceID names the audio source results are tagged with.
func sourceID(settings *conf.Settings) string {
	if settings.InputFile != "" {
		return settings.InputFile
	}
	return "soundcard"
}

func mqttConfig(settings *conf.Settings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.ClientID = settings.Main.Name
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.Topic = settings.MQTT.Topic
	cfg.Retain = settings.MQTT.Retain
	return cfg
}

// OnDrop counts a chunk dropped by a capture source.
func (p *Pipeline) OnDrop() {
	p.dropped.Add(1)
	if p.metrics != nil {
		p.metrics.Detector.RecordDroppedChunks(1)
	}
	p.diag.Report("dropped_chunks")
}

// Dropped returns the number of chunks dropped by the capture source.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// serve starts the background services in g. They run until ctx is done.
func (p *Pipeline) serve(ctx context.Context, g *errgroup.Group) {
	if p.Publisher == nil {
		return
	}
	g.Go(func() error {
		p.Publisher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		p.connectMQTT(ctx)
		<-ctx.Done()
		p.mqttClient.Disconnect()
		return nil
	})
}

// connectMQTT retries the initial broker connection until it succeeds or
// ctx is done. Later reconnects are handled by the client.
func (p *Pipeline) connectMQTT(ctx context.Context) {
	log := GetLogger()
	for {
		err := p.mqttClient.Connect(ctx)
		if err == nil {
			log.Info("Connected to MQTT broker", logger.String("broker", p.settings.MQTT.Broker))
			return
		}
		log.Warn("MQTT connection failed, retrying",
			logger.String("broker", p.settings.MQTT.Broker),
			logger.Duration("retry_in", mqttRetryInterval),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(mqttRetryInterval):
		}
	}
}

// Process starts src and feeds its audio to the detector until the source
// ends or ctx is done. It returns the first error reported by the source.
func (p *Pipeline) Process(ctx context.Context, src sources.Source) error {
	log := GetLogger().With(logger.String("source", src.Name()))

	if err := src.Start(ctx); err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryAudioSource).
			Context("operation", "start_source").
			Context("source", src.ID()).
			Build()
	}
	log.Info("Audio source started")

	var (
		sourceErr error
		errsDone  = make(chan struct{})
	)
	go func() {
		defer close(errsDone)
		for err := range src.Errors() {
			log.Warn("Audio source error", logger.Error(err))
			if sourceErr == nil {
				sourceErr = err
			}
		}
	}()

	worker := detector.NewWorker(p.Detector, p.settings.Detector.SampleRate)
	runErr := worker.Run(ctx, src.AudioOutput())

	if src.IsActive() {
		if err := src.Stop(); err != nil {
			log.Debug("Stopping audio source", logger.Error(err))
		}
	}
	src.Wait()
	<-errsDone

	log.Info("Audio source finished",
		logger.Uint64("chunks", worker.Chunks()),
		logger.Uint64("rejected", worker.Rejected()),
		logger.Uint64("dropped", p.Dropped()))

	if runErr != nil {
		return runErr
	}
	return sourceErr
}

// Close releases the detector's model and stops diagnostics. It is safe to
// call more than once.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.diag.Close()
		if p.closer != nil {
			err = p.closer()
		}
	})
	return err
}
