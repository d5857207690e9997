package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/swish/internal/adapters/mq/mqtt"
	"github.com/okian/swish/internal/config"
	"github.com/okian/swish/internal/simulator"
	"github.com/okian/swish/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second
	runTimeout     = 30 * time.Minute
)

func main() {
	var (
		broker  = flag.String("broker", "", "MQTT broker address (default from service config)")
		shots   = flag.Int("shots", simulator.DefaultShots, "Number of attempts to publish")
		gap     = flag.Duration("gap", simulator.DefaultGap, "Quiet time between attempts")
		scored  = flag.Float64("scored", simulator.DefaultScoredRatio, "Share of attempts followed by a score")
		noise   = flag.Float64("noise", simulator.DefaultNoise, "Probability of an orphan event before an attempt")
		seed    = flag.Uint64("seed", 0, "Random seed, 0 for a clock-based seed")
		verify  = flag.String("verify", "", "Service base URL to verify against")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose = flag.Bool("verbose", false, "Log every published event")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulator.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cfg := simulator.Config{
		Shots:       *shots,
		Gap:         *gap,
		ScoredRatio: *scored,
		Noise:       *noise,
		Seed:        *seed,
		BaseURL:     *verify,
		Timeout:     *timeout,
		Verbose:     *verbose,
	}
	if err := run(ctx, cfg, *broker); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg simulator.Config, broker string) error {
	svcCfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	mqttCfg := svcCfg.MQTT()
	if broker != "" {
		mqttCfg.Broker = broker
	}
	// The service's own client id must not be reused.
	mqttCfg.ClientID = ""

	pub := mqtt.NewPublisher(mqttCfg, svcCfg.Topics())
	if err := pub.Connect(ctx); err != nil {
		return err
	}
	defer pub.Close()

	opts := []simulator.GeneratorOption{
		simulator.WithGap(cfg.Gap),
		simulator.WithScoredRatio(cfg.ScoredRatio),
		simulator.WithNoise(cfg.Noise),
	}
	if cfg.Seed != 0 {
		opts = append(opts, simulator.WithSeed(cfg.Seed))
	}
	gen := simulator.NewGenerator(svcCfg.Thresholds(), opts...)
	plans := gen.Plans(cfg.Shots)

	expected, _, err := simulator.NewRunner(pub, simulator.WithVerbose(cfg.Verbose)).Run(ctx, plans, gen.Tail())
	if err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		return nil
	}
	return simulator.Verify(ctx, cfg.BaseURL, cfg.Timeout, expected)
}
