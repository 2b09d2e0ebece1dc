package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/WendelHime/peernet/internal/decoder"
	"github.com/WendelHime/peernet/internal/metrics"
	"github.com/WendelHime/peernet/internal/network"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type options struct {
	logFile     string
	logLevel    string
	metricsAddr string
	wait        time.Duration
}

// syncWriter serializes writes from the message printer and the prompt.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "peernet",
		Short: "Discover peers on the LAN and exchange messages with them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&opts.logFile, "log-file", "debug.log", "Specify the log file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().DurationVar(&opts.wait, "wait", 10*time.Second, "How long to wait for the first peer before the prompt")
	return cmd
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	out = &syncWriter{w: out}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
	}

	// Create a new logger and generate log file
	logOut, err := os.Create(opts.logFile)
	if err != nil {
		return err
	}
	defer logOut.Close()
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level}))

	m := metrics.NewMetrics("peernet", prometheus.DefaultRegisterer)
	if opts.metricsAddr != "" {
		srv := metrics.NewServer(opts.metricsAddr, prometheus.DefaultGatherer)
		srv.StartAsync()
		defer srv.Stop()
	}

	n, err := network.New(network.DefaultConfig(), decoder.NewCodec(), logger, m)
	if err != nil {
		logger.Error("failed to create peer network", slog.Any("error", err))
		return err
	}
	n.Start()
	defer n.Shutdown()

	fmt.Fprintf(out, "peer id: %s\nlistening on: %s\n", n.PeerID(), n.Addr())
	waitForFirstPeer(ctx, n, opts.wait, out)

	go printMessages(n, out)
	commandLoop(ctx, n, in, out)
	return nil
}

func waitForFirstPeer(ctx context.Context, n *network.PeerNetwork, wait time.Duration, out io.Writer) {
	if wait <= 0 {
		return
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("waiting for peers"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- n.WaitForPeers(ctx, 1)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				fmt.Fprintln(out, "\nno peers yet, they will be connected as they appear")
			}
			return
		case <-ticker.C:
			bar.Add(1)
		}
	}
}

func printMessages(n *network.PeerNetwork, out io.Writer) {
	for msg := range n.Messages() {
		fmt.Fprintf(out, "\n[%s] %s\n> ", msg.From, msg.Payload)
	}
}

func commandLoop(ctx context.Context, n *network.PeerNetwork, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprintln(out, "type 'help' for available commands")
	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleCommand(n, line, out); quit {
				return
			}
		}
	}
}
