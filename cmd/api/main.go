package main

import (
	"context"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"carecall-backend/internal/config"
	"carecall-backend/internal/conversation"
	"carecall-backend/internal/httpapi"
	"carecall-backend/internal/httpapi/handlers"
	"carecall-backend/internal/llm"
	"carecall-backend/internal/logger"
	"carecall-backend/internal/notify"
	"carecall-backend/internal/quiz"
	"carecall-backend/internal/speech"
	"carecall-backend/internal/storage"
	"carecall-backend/internal/store"
	"carecall-backend/internal/store/redisstore"
	"carecall-backend/internal/tts"
)

func main() {
	godotenv.Load()
	log := logger.New()
	cfg := config.Load()

	db, err := openDB(cfg)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	repo := store.NewRepo(db)
	if err := repo.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	stt, err := speech.NewClient(cfg.SpeechEndpoint, cfg.SpeechAPIKey, cfg.SpeechSecret,
		cfg.SpeechLanguage, cfg.SpeechTimeout,
		speech.TranscriptOptions{SpeakerNames: cfg.SpeechSpeakerNames})
	if err != nil {
		log.WithError(err).Fatal("configure speech client")
	}

	llmClient, err := llm.NewClient(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMAPISecret,
		cfg.LLMRequestID, cfg.LLMTimeout)
	if err != nil {
		log.WithError(err).Fatal("configure llm client")
	}
	generator := llm.NewGenerator(llmClient, cfg.ReplyHistorySize)

	var synth conversation.Synthesizer
	if cfg.TTSAPIKey != "" {
		ttsClient, err := tts.NewClient(cfg.TTSEndpoint, cfg.TTSAPIKey, cfg.TTSLanguageCode,
			cfg.TTSVoiceName, cfg.TTSAudioEncoding, cfg.TTSTimeout)
		if err != nil {
			log.WithError(err).Fatal("configure tts client")
		}
		synth = ttsClient
	} else {
		log.Warn("tts disabled, replies will be text only")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rstore := redisstore.New(rdb)

	opts := conversation.Options{
		Locks:         rstore,
		Cache:         rstore,
		ContextWindow: cfg.ContextWindowSize,
		HistorySize:   cfg.ReplyHistorySize,
		SignedURLTTL:  cfg.SignedURLTTL,
	}

	if cfg.StorageBucket != "" {
		gcs, err := storage.NewGCS(context.Background(), cfg.StorageBucket)
		if err != nil {
			log.WithError(err).Fatal("configure object storage")
		}
		defer gcs.Close()
		opts.Storage = gcs
	} else {
		log.Warn("object storage disabled, upload pipeline unavailable")
	}

	if cfg.RabbitURL != "" {
		pub, err := notify.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.WithError(err).Fatal("connect rabbitmq")
		}
		defer pub.Close()
		opts.Publisher = pub
	} else {
		log.Warn("rabbitmq disabled, analysis jobs will not be enqueued")
	}

	conv := conversation.NewService(repo, stt, generator, synth, log, opts)
	h := handlers.New(conv, quiz.NewService(repo), repo, log)
	router := httpapi.NewRouter(h, log)

	log.WithField("addr", cfg.HTTPAddr).Info("starting api server")
	if err := router.Run(cfg.HTTPAddr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "mysql" {
		return gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(cfg.DBDSN), &gorm.Config{})
}
