package main

import (
	"Muse/ai"
	"Muse/api"
	"Muse/bot"
	"Muse/chat"
	"Muse/core"
	"Muse/holder"
	"Muse/lib/sl"
	"Muse/storage"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("llm", conf.Ollama.Model),
		slog.String("image_model", conf.Together.Model),
	).Info("starting muse")

	memory := storage.NewMemorySeedStore()
	cache := storage.NewPromptImageCache(conf.Cache.MaxEntries, conf.Cache.TTL)
	sweeper := storage.NewSweeper(memory, conf.Memory.MaxAge, conf.Memory.SweepInterval, log)
	sweeper.Start()

	service := chat.NewServiceFromConfig(conf,
		ai.NewOllama(conf, log),
		ai.NewTogetherImages(conf, log),
		ai.NewIntentDetectorFromConfig(conf),
		memory,
		cache,
		log,
	)

	server := api.NewServer(conf, api.NewHandler(service, conf.HTTP.MaxBodyBytes, log), log)
	server.Start()

	var tgBot *bot.TgBot
	var dialogs *holder.ContextManager
	if conf.Telegram.Enabled {
		dialogs = holder.NewContextManager(dialogStorage(conf, log), log)
		var err error
		tgBot, err = bot.NewTgBot(conf, service, dialogs, log)
		if err != nil {
			log.Error("creating telegram", sl.Err(err))
		} else {
			go func() {
				if err := tgBot.Start(); err != nil {
					log.Error("bot stopped with error", sl.Err(err))
				}
			}()
			log.Info("bot started")
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	if tgBot != nil {
		tgBot.Stop()
	}
	if err := server.Stop(); err != nil {
		log.Error("stopping server", sl.Err(err))
	}
	sweeper.Stop()
	if dialogs != nil {
		if err := dialogs.Close(); err != nil {
			log.Error("closing dialog storage", sl.Err(err))
		}
	}

	log.Info("shutdown complete")
}

// dialogStorage picks MongoDB when enabled and reachable, memory otherwise
func dialogStorage(conf *core.Config, log *slog.Logger) storage.ContextStorage {
	if !conf.Mongo.Enabled {
		log.Info("using in-memory dialog storage")
		return storage.NewMemoryStorage()
	}
	mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%s",
		conf.Mongo.User, conf.Mongo.Password,
		conf.Mongo.Host, conf.Mongo.Port)
	store, err := storage.NewMongoStorage(mongoURI, conf.Mongo.Database, log)
	if err != nil {
		log.With(
			slog.String("db", conf.Mongo.Database),
			slog.String("user", conf.Mongo.User),
			slog.String("host", conf.Mongo.Host),
		).Error("falling back to memory", sl.Err(err))
		return storage.NewMemoryStorage()
	}
	log.Info("using MongoDB dialog storage")
	return store
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
