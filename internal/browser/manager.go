// Package browser owns the Chrome process the hub drives: launch or attach,
// keep a persistent profile so chat sites stay logged in, recycle on memory
// or age, and expose pages as dom.Document.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode selects how Chrome is run.
type Mode int

const (
	ModeHeadless Mode = iota // stealth headless
	ModeHeadful              // visible window on the current display
	ModeXvfb                 // headful on a virtual display
)

// ParseMode maps a config string to a Mode. Unknown values are headless.
func ParseMode(s string) Mode {
	switch s {
	case "headful":
		return ModeHeadful
	case "xvfb":
		return ModeXvfb
	default:
		return ModeHeadless
	}
}

func (m Mode) String() string {
	switch m {
	case ModeHeadful:
		return "headful"
	case ModeXvfb:
		return "xvfb"
	default:
		return "headless"
	}
}

// Config configures the Manager.
type Config struct {
	// RemoteURL attaches to an already running Chrome (DevTools WebSocket).
	// Empty launches a local one.
	RemoteURL string

	// UserDataDir is the Chrome profile directory. Chat sites need a
	// logged-in session, so this should point at a persistent path.
	UserDataDir string

	// Bin overrides the Chrome binary.
	Bin string

	Mode Mode

	// MemoryLimit in bytes of JS heap before a recycle. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 12h.
	RecycleInterval time.Duration

	// MonitorInterval is the heap/age check period. Default: 30s.
	MonitorInterval time.Duration

	// NavigateTimeout bounds OpenTab navigation. Default: 30s.
	NavigateTimeout time.Duration

	// OpTimeout bounds each element call of a tab's Document. Default: 5s.
	OpTimeout time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// XvfbDisplay for ModeXvfb. Default: ":99".
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 12 * time.Hour
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 30 * time.Second
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RecycleCallback is called around a Chrome restart. The hub uses it to
// drop its coordinators before the kill and reopen every target after.
type RecycleCallback struct {
	BeforeRecycle func()
	AfterRecycle  func(b *rod.Browser)
}

// Manager manages the Chrome lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	closed  bool
	cb      *RecycleCallback
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// SetRecycleCallback sets the callback for recycle events.
func (m *Manager) SetRecycleCallback(cb *RecycleCallback) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// Start launches Chrome (or attaches to RemoteURL) and starts the monitor.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)

	return b, nil
}

// Browser returns the current handle, nil before Start or after Close.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle kills Chrome, restarts it and runs the callbacks.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("browser: manager is closed")
	}
	cb := m.cb
	m.mu.Unlock()

	if cb != nil && cb.BeforeRecycle != nil {
		cb.BeforeRecycle()
	}

	m.mu.Lock()
	b, err := m.recycleLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if cb != nil && cb.AfterRecycle != nil {
		cb.AfterRecycle(b)
	}
	m.cfg.Logger.Info("browser: recycled")
	return nil
}

// Close shuts down Chrome and Xvfb. An attached remote Chrome is only
// disconnected.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Mode == ModeXvfb && m.cfg.RemoteURL == "" {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: attaching to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(m.cfg.Mode == ModeHeadless)
		if m.cfg.Mode == ModeXvfb {
			l = l.Env("DISPLAY=" + m.cfg.XvfbDisplay)
		}
		if m.cfg.UserDataDir != "" {
			l = l.UserDataDir(m.cfg.UserDataDir).Leakless(false)
		}
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched chrome", "url", wsURL, "mode", m.cfg.Mode, "profile", m.cfg.UserDataDir)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked() (*rod.Browser, error) {
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt))
	if err := m.cleanup(); err != nil {
		m.cfg.Logger.Warn("browser: cleanup during recycle", "error", err)
	}
	b, err := m.launch()
	if err != nil {
		return nil, fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	return b, nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		if m.lnch != nil {
			m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		// Keep the profile; it carries the chat logins.
		m.lnch.Kill()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		closed, b, startAt := m.closed, m.browser, m.startAt
		m.mu.RUnlock()
		if closed {
			return
		}
		if b == nil {
			continue
		}

		if m.lnch != nil && time.Since(startAt) > m.cfg.RecycleInterval {
			log.Info("browser: recycle interval reached")
			if err := m.Recycle(ctx); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
			continue
		}

		used, err := jsHeapUsage(b)
		if err != nil {
			log.Debug("browser: heap check failed", "error", err)
			continue
		}
		if used > m.cfg.MemoryLimit {
			log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
			if err := m.Recycle(ctx); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
		}
	}
}

// jsHeapUsage sums performance.memory across open pages.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			continue
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
