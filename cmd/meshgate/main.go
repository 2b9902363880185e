package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/HKUDS/meshgate-go/pkg/channels"
	"github.com/HKUDS/meshgate-go/pkg/config"
	"github.com/HKUDS/meshgate-go/pkg/gateway"
	"github.com/HKUDS/meshgate-go/pkg/metrics"
	"github.com/HKUDS/meshgate-go/pkg/msglog"
	"github.com/HKUDS/meshgate-go/pkg/relay"
	"github.com/HKUDS/meshgate-go/pkg/transport"
	"github.com/HKUDS/meshgate-go/pkg/utils"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: meshgate <command> [args]")
		fmt.Println("Commands: run, monitor, send, log, onboard")
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		runGateway(os.Args[2:])
	case "monitor":
		runMonitor(os.Args[2:])
	case "send":
		runSend(os.Args[2:])
	case "log":
		runLog(os.Args[2:])
	case "onboard":
		runOnboard(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runGateway(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger, closer := utils.SetupLogger(cfg.Logging.Dir, cfg.Logging.Level)
	defer closer.Close()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		fmt.Printf("Error registering metrics: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	state := gateway.NewState()
	build := func(ctx context.Context) (gateway.Runnable, error) {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		var mirrors []channels.Mirror
		tg, err := channels.NewTelegramMirror(&cfg.Telegram)
		switch {
		case err != nil:
			logger.Error("telegram mirror unavailable", "error", err)
		case tg != nil:
			mirrors = append(mirrors, tg)
		}
		return gateway.New(cfg, state, gateway.Options{
			Mirrors: mirrors,
			Logger:  logger,
			Metrics: m,
		})
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return gateway.Supervise(gctx, config.Seconds(cfg.Supervisor.RestartDelay), logger, build)
	})
	eg.Go(func() error {
		return gateway.ServeMetrics(gctx, cfg.Metrics.Addr, m, logger)
	})
	if err := eg.Wait(); err != nil {
		logger.Error("meshgate stopped", "error", err)
		os.Exit(1)
	}
}

func runMonitor(args []string) {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	list := fs.Bool("list", false, "List serial ports and exit")
	fs.Parse(args)

	if *list {
		ports, err := transport.ListPorts()
		if err != nil {
			fmt.Printf("Error listing ports: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg := loadConfig(*configPath)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: utils.ParseLevel(cfg.Logging.Level)}))

	ctx, cancel := signalContext()
	defer cancel()

	arbiter := transport.NewArbiter(transport.ArbiterConfig{
		Candidates:   cfg.Serial.Port,
		PollInterval: config.Seconds(cfg.Serial.ReconnectDelay),
		Opener:       transport.SerialOpener(cfg.Serial.Baud, config.Seconds(cfg.Serial.ReadTimeout)),
		Logger:       logger,
	})
	defer arbiter.Close()

	reader := transport.NewReader(arbiter, func(_ context.Context, line string) {
		fmt.Printf("%s %s\n", time.Now().Format("2006-01-02 15:04:05"), line)
	}, config.Seconds(cfg.Serial.ReconnectDelay), logger, nil)

	fmt.Printf("Monitoring %s. Press Ctrl+C to stop.\n", strings.Join(cfg.Serial.Port, ", "))
	_ = reader.Run(ctx)
}

func runSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	dest := fs.String("dest", "", "Destination node id")
	channel := fs.Int("ch", -1, "Channel index")
	fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if text == "" || (*dest == "") == (*channel < 0) {
		fmt.Println("Usage: meshgate send [-c config] (-dest id | -ch index) text")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: utils.ParseLevel(cfg.Logging.Level)}))

	ctx, cancel := signalContext()
	defer cancel()

	// Nothing reads the device here, so the arbiter is never opened.
	arbiter := transport.NewArbiter(transport.ArbiterConfig{
		Candidates: cfg.Serial.Port,
		Opener:     transport.SerialOpener(cfg.Serial.Baud, config.Seconds(cfg.Serial.ReadTimeout)),
		Logger:     logger,
	})
	sender := relay.NewSender(arbiter, relay.NewCLIRunner(cfg.Relay.CLIPath), relay.Config{
		ChunkSize:    cfg.Relay.ChunkSize,
		Timeout:      config.Seconds(cfg.Relay.Timeout),
		RetryTimeout: config.Seconds(cfg.Relay.RetryTimeout),
		Pause:        config.Seconds(cfg.Relay.Pause),
	}, logger, nil)

	target := relay.ToNode(*dest)
	if *channel >= 0 {
		target = relay.ToChannel(*channel)
	}
	res := sender.Send(ctx, target, text)
	fmt.Printf("Delivered %d of %d chunks to %s\n", res.Delivered, res.Chunks, target)
	if res.Delivered != res.Chunks {
		os.Exit(1)
	}
}

func runLog(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	limit := fs.Int("n", 20, "Number of messages to show, 0 for all")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	store, err := msglog.OpenStore(cfg.Log.File)
	if err != nil {
		fmt.Printf("Error opening message log: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), *limit)
	if err != nil {
		fmt.Printf("Error reading message log: %v\n", err)
		os.Exit(1)
	}
	for _, r := range records {
		fmt.Println(r)
	}
}

func runOnboard(args []string) {
	fs := flag.NewFlagSet("onboard", flag.ExitOnError)
	configPath := fs.String("c", "config.json", "Path of the config file to create")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil {
		fmt.Printf("Config file already exists at %s\n", *configPath)
		return
	}

	cfg := config.DefaultConfig()
	if ports, err := transport.ListPorts(); err == nil && len(ports) > 0 {
		cfg.Serial.Port = ports
	}
	if err := config.SaveConfig(*configPath, cfg); err != nil {
		fmt.Printf("Error writing config file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created config file at %s\n", *configPath)

	if err := os.MkdirAll(cfg.Logging.Dir, 0755); err != nil {
		fmt.Printf("Error creating log directory: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created log directory at %s\n", cfg.Logging.Dir)
}
