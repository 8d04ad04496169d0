package analysis

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sync/errgroup"

	"github.com/deeplyinc/homeaudio-go/internal/api"
	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
	"github.com/deeplyinc/homeaudio-go/internal/observability"
)

// RealtimeAnalysis captures from the configured sound card until ctx is
// cancelled. The query API, the telemetry endpoint and the MQTT publisher
// run alongside when enabled.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings) error {
	log := GetLogger()
	logSystemDetails(ctx, log)

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	p, err := NewPipeline(settings, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("Failed to release detector", logger.Error(err))
		}
	}()

	log.Info("Starting analyzer in realtime mode",
		logger.String("node", settings.Main.Name),
		logger.String("source", settings.Audio.Source),
		logger.Bool("model_loaded", p.Detector.Status().ModelLoaded),
		logger.Bool("stub", settings.UseStub),
		logger.Float64("threshold", settings.Detector.Threshold))

	g, gctx := errgroup.WithContext(ctx)
	p.serve(gctx, g)

	if settings.WebServer.Enabled {
		server, err := api.New(api.ConfigFromSettings(settings), p.Detector, api.WithMetrics(m))
		if err != nil {
			return err
		}
		g.Go(func() error { return server.Run(gctx) })
	}

	if settings.Telemetry.Enabled && settings.Telemetry.Listen != "" {
		endpoint := observability.NewEndpoint(settings.Telemetry.Listen, m)
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	src := sources.New(settings, p.OnDrop)
	g.Go(func() error {
		if err := p.Process(gctx, src); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.Newf("audio source %s stopped unexpectedly", src.Name()).
				Component("analysis").
				Category(errors.CategoryAudioSource).
				Build()
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("Realtime analysis stopped", logger.Int("results", p.Detector.Status().Results))
	return err
}

// logSystemDetails logs the host platform once at startup.
func logSystemDetails(ctx context.Context, log logger.Logger) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Warn("Failed to retrieve host info", logger.Error(err))
		return
	}
	log.Info("System details",
		logger.String("os", info.OS),
		logger.String("platform", info.Platform),
		logger.String("platform_version", info.PlatformVersion),
		logger.String("arch", info.KernelArch))
}
