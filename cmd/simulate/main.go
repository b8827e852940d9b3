// Command simulate runs the greenhouse control loop headless and prints every tick.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afroash/vpd-monitor/internal/config"
	"github.com/afroash/vpd-monitor/internal/greenhouse"
	"github.com/afroash/vpd-monitor/internal/logging"
	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/rs/zerolog"
)

// options are the command-line settings
type options struct {
	Ticks    int
	Interval time.Duration // 0 = tick back to back
	Drift    string        // random or none
	Seed     uint64
	Stage    string
	Mode     string
	JSON     bool
}

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	opts := options{}
	flag.IntVar(&opts.Ticks, "ticks", 20, "number of ticks to run")
	flag.DurationVar(&opts.Interval, "interval", 0, "time between ticks (0 = as fast as possible)")
	flag.StringVar(&opts.Drift, "drift", "random", "drift source: random or none")
	flag.Uint64Var(&opts.Seed, "seed", 0, "random seed (0 = from config or clock)")
	flag.StringVar(&opts.Stage, "stage", "", "growth stage override")
	flag.StringVar(&opts.Mode, "mode", "", "control mode override (Automatic or Manual)")
	flag.BoolVar(&opts.JSON, "json", false, "print snapshots as JSON lines")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadAppConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	logger := logging.New(cfg.Logging, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg, opts, os.Stdout, logger); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("Simulation failed")
	}
}

// run drives the controller for opts.Ticks ticks and writes one line per tick to out
func run(ctx context.Context, cfg *config.AppConfig, opts options, out io.Writer, logger zerolog.Logger) error {
	ghCfg := cfg.GreenhouseConfig()
	if opts.Stage != "" {
		ghCfg.InitialStage = models.GrowthStage(opts.Stage)
	}
	if opts.Mode != "" {
		mode, err := models.ParseControlMode(opts.Mode)
		if err != nil {
			return err
		}
		ghCfg.InitialMode = mode
	}
	if opts.Interval > 0 {
		ghCfg.TickInterval = opts.Interval
	}

	var drift greenhouse.DriftSource
	switch opts.Drift {
	case "none":
		drift = greenhouse.FixedDrift{}
	case "random", "":
		seed := opts.Seed
		if seed == 0 {
			seed = cfg.Controller.Seed
		}
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		logger.Info().Uint64("seed", seed).Msg("Random drift")
		drift = greenhouse.NewRandomDrift(seed)
	default:
		return fmt.Errorf("unknown drift source %q", opts.Drift)
	}

	controller := greenhouse.NewController(ghCfg, drift, logger)
	printer := &printer{out: out, json: opts.JSON}
	printer.header()
	printer.print(controller.Snapshot())

	if opts.Interval <= 0 {
		for i := 0; i < opts.Ticks; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			printer.print(controller.Tick())
		}
		return printer.err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	controller.AddObserver(greenhouse.ObserverFunc(func(snap models.Snapshot) {
		printer.print(snap)
		if snap.Tick >= int64(opts.Ticks) {
			stop()
		}
	}))
	if err := controller.Run(runCtx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return printer.err
}

type printer struct {
	out  io.Writer
	json bool
	err  error
}

func (p *printer) header() {
	if p.json {
		return
	}
	p.write(fmt.Sprintf("%-5s %-6s %6s %6s %6s %6s  %-7s %-4s %-6s\n",
		"tick", "time", "temp", "rh", "soil", "vpd", "status", "fan", "mister"))
}

func (p *printer) print(snap models.Snapshot) {
	if p.json {
		b, err := json.Marshal(snap)
		if err != nil {
			p.err = err
			return
		}
		p.write(string(b) + "\n")
		return
	}
	r := snap.Reading
	p.write(fmt.Sprintf("%-5d %-6s %6.1f %6.1f %6.1f %6.2f  %-7s %-4s %-6s\n",
		snap.Tick, r.DisplayTime, r.Temperature, r.Humidity, r.SoilMoisture, r.VPD,
		snap.Classification.Status, snap.Actuators.Fan, snap.Actuators.Mister))
}

func (p *printer) write(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.out, s)
}
