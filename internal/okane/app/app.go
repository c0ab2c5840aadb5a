// Package app wires the Okane subsystems together and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okanebot/okane/common/trace"
	"github.com/okanebot/okane/internal/okane/catalog"
	"github.com/okanebot/okane/internal/okane/charts"
	"github.com/okanebot/okane/internal/okane/dispatch"
	"github.com/okanebot/okane/internal/okane/executor"
	"github.com/okanebot/okane/internal/okane/ledger"
	"github.com/okanebot/okane/internal/okane/llm"
	"github.com/okanebot/okane/internal/okane/matrix"
	"github.com/okanebot/okane/internal/okane/observability"
	"github.com/okanebot/okane/internal/okane/platform"
	"github.com/okanebot/okane/internal/okane/whatsapp"
)

// handleTimeout bounds one message's processing: two model rounds, the
// operations between them, and outbound delivery.
const handleTimeout = 2 * time.Minute

// Config holds application configuration.
type Config struct {
	DatabasePath string

	// LLM configures the completion provider.
	LLM llm.OpenAIConfig

	// Charts configures the chart rendering service.
	Charts charts.Config

	// Matrix enables the Matrix transport when Homeserver is set.
	Matrix matrix.Config

	// WhatsApp enables the WhatsApp transport when HTTPAddr is set.
	WhatsApp WhatsAppConfig
}

// WhatsAppConfig groups the WhatsApp transport settings.
type WhatsAppConfig struct {
	// HTTPAddr is the listen address for the webhook server (e.g. ":8080").
	// Empty disables the WhatsApp transport.
	HTTPAddr string

	Sender  whatsapp.SenderConfig
	Webhook whatsapp.WebhookConfig

	// TemplatesPath points to the approved-template registry YAML. Empty
	// means no templates, so every template reply degrades to text.
	TemplatesPath string
}

// App is the assembled Okane application.
type App struct {
	config     *Config
	store      *ledger.Store
	dispatcher *dispatch.Dispatcher

	matrixClient    *matrix.Client
	matrixFormatter *platform.MatrixFormatter

	waSender    *whatsapp.Sender
	waFormatter *platform.WhatsAppFormatter
	httpServer  *http.Server
}

// New assembles an App from config. At least one transport must be
// configured.
func New(config *Config) (*App, error) {
	if config.Matrix.Homeserver == "" && config.WhatsApp.HTTPAddr == "" {
		return nil, fmt.Errorf("no transport configured: set Matrix or WhatsApp settings")
	}

	slog.Info("opening database", "path", config.DatabasePath)
	store, err := ledger.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cat, err := catalog.New()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build capability catalog: %w", err)
	}

	provider := llm.NewOpenAI(config.LLM)
	renderer := charts.New(config.Charts)
	exec := executor.New(cat, store, renderer)
	dispatcher := dispatch.New(provider, cat, exec)

	a := &App{
		config:     config,
		store:      store,
		dispatcher: dispatcher,
	}

	if config.Matrix.Homeserver != "" {
		matrixCfg := config.Matrix
		matrixCfg.DB = store.DB()
		slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
		client, err := matrix.New(&matrixCfg)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
		}
		a.matrixClient = client
		a.matrixFormatter = platform.NewMatrixFormatter()
	}

	if config.WhatsApp.HTTPAddr != "" {
		templates, err := loadTemplates(config.WhatsApp.TemplatesPath)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.waSender = whatsapp.NewSender(config.WhatsApp.Sender)
		a.waFormatter = platform.NewWhatsAppFormatter(templates)
		hook := whatsapp.NewWebhook(config.WhatsApp.Webhook, a.handleWhatsAppMessage)
		a.httpServer = &http.Server{
			Addr:    config.WhatsApp.HTTPAddr,
			Handler: hook.Router(),
		}
	}

	return a, nil
}

// loadTemplates reads the approved-template registry, tolerating an empty
// path.
func loadTemplates(path string) (*platform.TemplateRegistry, error) {
	if path == "" {
		return platform.ParseTemplates(nil)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template registry: %w", err)
	}
	registry, err := platform.ParseTemplates(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template registry: %w", err)
	}
	return registry, nil
}

// Run starts the configured transports and blocks until an interrupt
// signal.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.matrixClient != nil {
		slog.Info("starting Matrix sync")
		if err := a.matrixClient.Start(ctx, a.handleMatrixMessage); err != nil {
			return fmt.Errorf("failed to start Matrix client: %w", err)
		}
	}

	if a.httpServer != nil {
		slog.Info("starting webhook server", "addr", a.httpServer.Addr)
		go func() {
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("webhook server stopped", "err", err)
			}
		}()
	}

	slog.Info("Okane is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())
	return nil
}

// Stop shuts down the transports and closes the database.
func (a *App) Stop() {
	if a.matrixClient != nil {
		a.matrixClient.Stop()
	}
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("webhook server shutdown", "err", err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

// handleMatrixMessage processes one Matrix message. Called from the sync
// loop; the work runs in its own goroutine so a slow model round does not
// stall sync.
func (a *App) handleMatrixMessage(_ context.Context, msg matrix.Inbound) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		ctx = trace.WithTraceID(ctx, trace.GenerateID())

		a.matrixClient.SetTyping(ctx, msg.RoomID, true, handleTimeout)
		defer a.matrixClient.SetTyping(ctx, msg.RoomID, false, 0)

		reply := a.dispatcher.Handle(ctx, msg.SenderID, msg.Text)
		out := platform.Render(a.matrixFormatter, reply)
		if err := a.matrixClient.Send(ctx, msg.RoomID, out); err != nil {
			observability.WithTrace(ctx).Error("failed to deliver Matrix reply", "room", msg.RoomID, "err", err)
		}
	}()
}

// handleWhatsAppMessage processes one webhook message. The webhook must be
// acknowledged quickly, so the work runs detached from the request context.
func (a *App) handleWhatsAppMessage(_ context.Context, msg whatsapp.Inbound) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		ctx = trace.WithTraceID(ctx, trace.GenerateID())

		reply := a.dispatcher.Handle(ctx, msg.From, msg.Text)
		out := platform.Render(a.waFormatter, reply)
		if err := a.waSender.Send(ctx, msg.From, out); err != nil {
			// Graph API errors can echo the request URL, which carries
			// credentials.
			detail := observability.RedactSecrets(err.Error(), a.config.WhatsApp.Sender.AccessToken)
			observability.WithTrace(ctx).Error("failed to deliver WhatsApp reply", "to", msg.From, "err", detail)
		}
	}()
}
