// Command chatcast keeps a set of AI chat sites open in Chrome and sends
// the same prompt to all of them.
//
// Usage:
//
//	chatcast -config chatcast.yaml            # serve HTTP, WebSocket and MCP
//	chatcast -config chatcast.yaml -repl      # interactive prompt
//	chatcast -send "hello"                    # one broadcast, print results
//	chatcast -mcp stdio                       # MCP over stdin/stdout
//	chatcast -probe https://chat.example/     # diagnose a page and exit
//	chatcast -probe https://chat.example/ -http
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chatcast/hub"
	"github.com/hazyhaar/chatcast/internal/browser"
)

type options struct {
	configPath string
	listen     string
	send       string
	probe      string
	probeHTTP  bool
	repl       bool
	mcp        string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to chatcast.yaml (defaults apply when empty)")
	flag.StringVar(&o.listen, "listen", "", "override the listen address")
	flag.StringVar(&o.send, "send", "", "broadcast TEXT to every open target and exit")
	flag.StringVar(&o.probe, "probe", "", "diagnose the chat input of URL and exit")
	flag.BoolVar(&o.probeHTTP, "http", false, "with -probe: fetch over plain HTTP instead of Chrome")
	flag.BoolVar(&o.repl, "repl", false, "read prompts from the terminal")
	flag.StringVar(&o.mcp, "mcp", "", "MCP transport to serve on instead of HTTP: stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("chatcast: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := hub.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.listen != "" {
		cfg.Listen = o.listen
	}

	if o.probe != "" && o.probeHTTP {
		return runProbeHTTP(ctx, logger, cfg, o.probe)
	}
	if o.mcp != "" && o.mcp != "stdio" {
		return fmt.Errorf("unknown MCP transport %q", o.mcp)
	}
	if o.mcp == "stdio" {
		// stdout carries the protocol.
		cfg.Sinks = withoutStdout(cfg.Sinks)
	}

	mgr := browser.NewManager(hub.BrowserConfig(cfg, logger))
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	if o.probe != "" {
		return runProbeBrowser(ctx, logger, cfg, mgr, o.probe)
	}

	h, closeHub, err := hub.Build(ctx, cfg, hub.NewBrowserOpener(ctx, mgr), logger)
	if err != nil {
		return err
	}
	defer closeHub()
	h.AttachRecycle(ctx, mgr)

	for _, r := range h.OpenAll(ctx) {
		if r.Error != "" {
			logger.Warn("chatcast: target not opened", "target", r.SiteID, "error", r.Error)
		}
	}

	switch {
	case o.send != "":
		return runSend(ctx, h, o.send)
	case o.mcp == "stdio":
		srv := newMCPServer(cfg, h)
		logger.Info("chatcast: serving MCP on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	case o.repl:
		return runREPL(ctx, h)
	default:
		return serve(ctx, logger, cfg, h)
	}
}

func newMCPServer(cfg *hub.Config, h *hub.Hub) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: cfg.MCP.Name, Version: cfg.MCP.Version}, nil)
	h.RegisterMCP(srv)
	return srv
}

func serve(ctx context.Context, logger *slog.Logger, cfg *hub.Config, h *hub.Hub) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h.Handler(newMCPServer(cfg, h)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chatcast: listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("chatcast: shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runSend(ctx context.Context, h *hub.Hub, text string) error {
	b, err := h.SendToAll(ctx, text)
	if err != nil {
		return err
	}
	if err := printJSON(b); err != nil {
		return err
	}
	if !b.Success {
		return errors.New("no target accepted the prompt")
	}
	return nil
}

func runProbeHTTP(ctx context.Context, logger *slog.Logger, cfg *hub.Config, url string) error {
	h, err := hub.New(ctx, cfg, hub.WithLogger(logger))
	if err != nil {
		return err
	}
	defer h.Shutdown()
	d, err := h.ProbeURL(ctx, url)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	return printJSON(d)
}

func runProbeBrowser(ctx context.Context, logger *slog.Logger, cfg *hub.Config, mgr *browser.Manager, url string) error {
	h, err := hub.New(ctx, cfg, hub.WithLogger(logger))
	if err != nil {
		return err
	}
	defer h.Shutdown()
	d, err := h.ProbeBrowser(ctx, mgr, url)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	return printJSON(d)
}

const replHelp = `type a prompt to send it to every open target, or:
  /targets        list targets
  /open           (re)open enabled targets
  /probe ID       diagnose one target
  /quit           exit`

func runREPL(ctx context.Context, h *hub.Hub) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "chatcast> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()
	fmt.Fprintln(rl.Stdout(), replHelp)

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var out any
		switch cmd, arg, _ := strings.Cut(line, " "); cmd {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(rl.Stdout(), replHelp)
			continue
		case "/targets":
			out = h.Targets()
		case "/open":
			out = h.OpenAll(ctx)
		case "/probe":
			out, err = h.Probe(ctx, strings.TrimSpace(arg))
		default:
			if strings.HasPrefix(cmd, "/") {
				fmt.Fprintf(rl.Stdout(), "unknown command %s\n", cmd)
				continue
			}
			out, err = h.SendToAll(ctx, line)
		}
		if err != nil {
			fmt.Fprintf(rl.Stdout(), "error: %v\n", err)
			continue
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(rl.Stdout(), string(data))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func withoutStdout(sinks []hub.SinkConfig) []hub.SinkConfig {
	out := sinks[:0:0]
	for _, s := range sinks {
		if s.Type != "stdout" {
			out = append(out, s)
		}
	}
	return out
}
