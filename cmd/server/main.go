package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/r8kyu/scribe-project/internal/agent"
	"github.com/r8kyu/scribe-project/internal/document"
	"github.com/r8kyu/scribe-project/internal/events"
	"github.com/r8kyu/scribe-project/internal/handler"
	"github.com/r8kyu/scribe-project/internal/maintenance"
	"github.com/r8kyu/scribe-project/internal/model"
	"github.com/r8kyu/scribe-project/internal/monitor"
	"github.com/r8kyu/scribe-project/internal/search"
	"github.com/r8kyu/scribe-project/internal/storage"
	"github.com/r8kyu/scribe-project/internal/supervisor"
	"github.com/r8kyu/scribe-project/internal/textgen"
)

// chatRequest is the wire shape accepted on the chat gateway subject.
type chatRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	Message    string `json:"message"`
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id,omitempty"`
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	loadConfig(logger)

	// Connect to NATS with more options
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error",
				zap.String("subject", sub.Subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.url"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	store, err := storage.OpenSQLite(logger, viper.GetString("storage.path"))
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	documents := document.NewManager(store, logger)

	// Scripted collaborators stand in until real providers are wired.
	logger.Warn("No generation or search provider configured, using mocks")
	gen := textgen.NewMock()
	searcher := search.NewMock()

	publisher, err := events.NewPublisher(js, logger)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}

	collector := monitor.NewCollector(js, viper.GetDuration("metrics.interval"), logger)

	agents := buildAgents(documents, gen, searcher, store,
		[]agent.Observer{publisher, collector}, logger)

	sup := supervisor.New(
		supervisor.Deps{
			Agents:    agents,
			Store:     store,
			Documents: documents,
			Generator: gen,
			Events:    publisher,
		},
		supervisor.Config{
			MaxParallel:  viper.GetInt("supervisor.max_parallel"),
			BatchTimeout: viper.GetDuration("supervisor.batch_timeout"),
			MaxTurns:     viper.GetInt("supervisor.max_turns"),
		},
		logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Chat gateway: request/reply over core NATS. Each request runs its
	// own goroutine so a slow turn never blocks the subscription.
	chatSubject := viper.GetString("chat.subject")
	sub, err := nc.Subscribe(chatSubject, func(msg *nats.Msg) {
		go handleChat(ctx, sup, logger, msg)
	})
	if err != nil {
		logger.Fatal("Failed to subscribe to chat subject",
			zap.String("subject", chatSubject),
			zap.Error(err))
	}
	logger.Info("Chat gateway listening", zap.String("subject", chatSubject))

	alerter := monitor.NewAlerter(js, logger)
	if err := alerter.Start(ctx); err != nil {
		logger.Fatal("Failed to start alerter", zap.Error(err))
	}
	alerter.AddRule(&model.AlertRule{
		Name:      "capability failure streak",
		Type:      model.AlertTypeTaskFailure,
		Threshold: viper.GetFloat64("alerts.failure_streak"),
		Severity:  model.AlertSeverityWarning,
	})
	alerter.AddRule(&model.AlertRule{
		Name:      "host resource usage",
		Type:      model.AlertTypeResourceUsage,
		Threshold: viper.GetFloat64("alerts.resource_threshold"),
		Severity:  model.AlertSeverityCritical,
	})

	collector.Start(ctx)

	janitor := maintenance.NewJanitor(store,
		viper.GetString("maintenance.schedule"),
		viper.GetDuration("maintenance.retention"),
		logger)
	if err := janitor.Start(); err != nil {
		logger.Fatal("Failed to start maintenance", zap.Error(err))
	}

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		logger.Warn("Failed to drain chat subscription", zap.Error(err))
	}
	janitor.Stop()
	collector.Stop()
	alerter.Stop()

	logger.Info("Server shutting down gracefully")
}

func loadConfig(logger *zap.Logger) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("app.name", "scribe")
	viper.SetDefault("nats.url", nats.DefaultURL)
	viper.SetDefault("nats.max_reconnects", 10)
	viper.SetDefault("nats.reconnect_wait", 2*time.Second)
	viper.SetDefault("nats.connect_timeout", 5*time.Second)
	viper.SetDefault("storage.path", "scribe.db")
	viper.SetDefault("chat.subject", "scribe.chat.request")
	viper.SetDefault("supervisor.max_parallel", 3)
	viper.SetDefault("supervisor.batch_timeout", 5*time.Minute)
	viper.SetDefault("supervisor.max_turns", 50)
	viper.SetDefault("metrics.interval", 30*time.Second)
	viper.SetDefault("maintenance.schedule", maintenance.DefaultSchedule)
	viper.SetDefault("maintenance.retention", maintenance.DefaultRetention)
	viper.SetDefault("alerts.failure_streak", 3)
	viper.SetDefault("alerts.resource_threshold", 90.0)
	viper.SetDefault("agents.outline.max_retries", 2)
	viper.SetDefault("agents.outline.timeout", 15*time.Second)
	viper.SetDefault("agents.summary.max_retries", 3)
	viper.SetDefault("agents.summary.timeout", 20*time.Second)
	viper.SetDefault("agents.writer.max_retries", 3)
	viper.SetDefault("agents.writer.timeout", 45*time.Second)
	viper.SetDefault("agents.logic_validator.max_retries", 2)
	viper.SetDefault("agents.logic_validator.timeout", 30*time.Second)
	viper.SetDefault("agents.reference.max_retries", 3)
	viper.SetDefault("agents.reference.timeout", 25*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Info("No config file found, using defaults")
			return
		}
		logger.Fatal("Failed to read config file", zap.Error(err))
	}
	logger.Info("Loaded config file", zap.String("file", viper.ConfigFileUsed()))
}

// buildAgents wraps each capability handler in the execution contract with
// its configured retry and timeout budget.
func buildAgents(documents *document.Manager, gen textgen.Generator, searcher search.Searcher, runs storage.TaskRunStore, observers []agent.Observer, logger *zap.Logger) map[string]*agent.Agent {
	handlers := []agent.Handler{
		handler.NewOutlineHandler(documents, logger),
		handler.NewSummaryHandler(gen, logger),
		handler.NewWriterHandler(gen, logger),
		handler.NewLogicValidatorHandler(gen, logger),
		handler.NewReferenceHandler(searcher, gen, logger),
	}

	agents := make(map[string]*agent.Agent, len(handlers))
	for _, h := range handlers {
		cfg := agent.Config{
			MaxRetries: viper.GetInt("agents." + h.Name() + ".max_retries"),
			Timeout:    viper.GetDuration("agents." + h.Name() + ".timeout"),
		}
		ag := agent.New(h, cfg, runs, logger)
		for _, obs := range observers {
			ag.AddObserver(obs)
		}
		agents[h.Name()] = ag

		logger.Info("Registered capability",
			zap.String("name", h.Name()),
			zap.Int("max_retries", cfg.MaxRetries),
			zap.Duration("timeout", cfg.Timeout))
	}
	return agents
}

func handleChat(ctx context.Context, sup *supervisor.Supervisor, logger *zap.Logger, msg *nats.Msg) {
	var req chatRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		logger.Error("Invalid chat request", zap.Error(err))
		respond(logger, msg, map[string]interface{}{
			"success": false,
			"error":   "invalid request payload",
		})
		return
	}
	if req.Message == "" || req.UserID == "" {
		respond(logger, msg, map[string]interface{}{
			"success": false,
			"error":   "message and user_id are required",
		})
		return
	}

	turn, err := sup.ProcessUserMessage(ctx, req.SessionID, req.Message, req.UserID, req.DocumentID)
	if err != nil && !errors.Is(err, supervisor.ErrTurnLimit) {
		logger.Error("Chat turn failed", zap.Error(err))
	}
	respond(logger, msg, turn)
}

func respond(logger *zap.Logger, msg *nats.Msg, payload interface{}) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal chat reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		logger.Error("Failed to send chat reply", zap.Error(err))
	}
}
