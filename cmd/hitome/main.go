package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/api"
	"github.com/xaenox/hitome/internal/classifier"
	"github.com/xaenox/hitome/internal/dedupe"
	"github.com/xaenox/hitome/internal/google"
	"github.com/xaenox/hitome/internal/inbox"
	"github.com/xaenox/hitome/internal/line"
	"github.com/xaenox/hitome/internal/notify"
	"github.com/xaenox/hitome/internal/storage"
	"github.com/xaenox/hitome/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	// .env is optional, real environment variables win
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host), zap.String("dbname", cfg.Database.DBName))
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Rules always run; GPT only rewrites summary and intent
	rules := classifier.NewRuleClassifier(cfg.Classifier.DangerWords...)
	var clf classifier.Classifier = rules
	if cfg.OpenAI.APIKey != "" {
		logger.Info("Using GPT classifier", zap.String("model", cfg.OpenAI.Model))
		clf = classifier.NewGPTClassifier(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.BaseURL,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			rules,
			logger,
		)
	}

	var deduper dedupe.Deduper = dedupe.NewMemoryDeduper(cfg.Redis.DedupeTTL)
	if cfg.Redis.URL != "" {
		rd, err := dedupe.NewRedisDeduper(cfg.Redis.URL, cfg.Redis.DedupeTTL)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rd.Close()
		deduper = rd
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token, logger)
		if err != nil {
			logger.Fatal("Failed to create Telegram notifier", zap.Error(err))
		}
		go tg.Listen(ctx)
		notifier = tg
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	svc := inbox.NewService(
		store,
		clf,
		line.NewClient(cfg.Line.EndpointBase, httpClient, logger),
		google.NewClient(cfg.Google.APIBaseURL, httpClient, logger),
		notifier,
		deduper,
		logger,
	)

	server := api.NewServer(api.ServerOptions{
		Port:             cfg.Server.Port,
		LoginRedirectURL: cfg.LineLogin.RedirectURL,
		CookieSecure:     cfg.Server.CookieSecure,
		SessionTTL:       cfg.Session.TTL,
		DefaultLine: api.LineCredentials{
			ChannelID:     cfg.Line.ChannelID,
			ChannelSecret: cfg.Line.ChannelSecret,
			AccessToken:   cfg.Line.AccessToken,
		},
		Storage: store,
		Inbox:   svc,
		Login:   line.NewLogin(cfg.LineLogin.ChannelID, cfg.LineLogin.ChannelSecret),
		Logger:  logger,
	})

	if err := server.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
