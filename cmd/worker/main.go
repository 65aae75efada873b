package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"carecall-backend/internal/analysis"
	"carecall-backend/internal/config"
	"carecall-backend/internal/llm"
	"carecall-backend/internal/logger"
	"carecall-backend/internal/notify"
	"carecall-backend/internal/store"
)

func main() {
	godotenv.Load()
	log := logger.New()
	cfg := config.Load()

	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required for the worker")
	}

	db, err := openDB(cfg)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	repo := store.NewRepo(db)
	if err := repo.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	llmClient, err := llm.NewClient(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMAPISecret,
		cfg.LLMRequestID, cfg.LLMTimeout)
	if err != nil {
		log.WithError(err).Fatal("configure llm client")
	}
	generator := llm.NewGenerator(llmClient, cfg.ReplyHistorySize)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.WithError(err).Fatal("connect rabbitmq")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Fatal("open channel")
	}
	defer ch.Close()

	if err := notify.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.WithError(err).Fatal("declare queues")
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.WithError(err).Fatal("set qos")
	}

	deliveries, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.WithError(err).Fatal("consume queue")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &worker{
		repo:      repo,
		generator: generator,
		log:       log,
		ch:        ch,
		dlq:       notify.DLQName(cfg.RabbitQueue),
	}

	log.WithField("concurrency", concurrency).Info("analysis worker started")

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					w.handle(ctx, d)
				}
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")
	ch.Close()
	wg.Wait()
}

type worker struct {
	repo      *store.Repo
	generator *llm.Generator
	log       *logger.Logger
	ch        *amqp.Channel
	dlq       string
}

// maxDeliveries bounds how many times a failing job cycles through the
// retry queue before it is parked in the dlq.
const maxDeliveries = 3

// handle builds one senior's daily report from the day's conversation
// logs. A malformed message goes straight to the dlq; a processing
// failure is requeued through the retry queue until its retry budget
// runs out.
func (w *worker) handle(ctx context.Context, d amqp.Delivery) {
	var job notify.AnalysisJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		w.log.WithError(err).Error("malformed job, parking in dlq")
		w.deadLetter(ctx, d)
		return
	}

	log := w.log.WithField("senior_id", job.SeniorID).WithField("date", job.Date)

	if err := w.process(ctx, job); err != nil {
		if deathCount(d) >= maxDeliveries {
			log.WithError(err).Error("analysis job exhausted retries, parking in dlq")
			w.deadLetter(ctx, d)
			return
		}
		log.WithError(err).Error("analysis job failed, will retry")
		d.Nack(false, false)
		return
	}
	log.Info("analysis report updated")
	d.Ack(false)
}

// deadLetter republishes a delivery on the dlq and acks the original.
// Nothing dead-letters into the dlq on its own: the retry queue routes
// back to the main queue, so parking a message is an explicit publish.
func (w *worker) deadLetter(ctx context.Context, d amqp.Delivery) {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := w.ch.PublishWithContext(pubCtx, "", w.dlq, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         d.Body,
	})
	if err != nil {
		w.log.WithError(err).Error("dlq publish failed, keeping message in rotation")
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

// deathCount reads how many times a delivery has cycled through the
// main queue, from the x-death header the broker stamps on each
// dead-letter hop.
func deathCount(d amqp.Delivery) int64 {
	deaths, ok := d.Headers["x-death"].([]any)
	if !ok {
		return 0
	}
	var most int64
	for _, raw := range deaths {
		entry, ok := raw.(amqp.Table)
		if !ok {
			continue
		}
		if n, ok := entry["count"].(int64); ok && n > most {
			most = n
		}
	}
	return most
}

func (w *worker) process(ctx context.Context, job notify.AnalysisJob) error {
	from, err := time.ParseInLocation("2006-01-02", job.Date, time.Local)
	if err != nil {
		return errors.New("invalid date " + job.Date)
	}
	to := from.AddDate(0, 0, 1)

	logs, err := w.repo.ListLogsForSeniorDay(ctx, job.SeniorID, from, to)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	metrics := analysis.Compute(logs)

	sentiment := "neutral"
	summary := ""
	result, err := w.generator.Analyze(ctx, dayTranscript(logs), llm.Profile{})
	if err != nil {
		if !errors.Is(err, llm.ErrAnalysisParse) {
			return err
		}
		w.log.WithField("senior_id", job.SeniorID).WithError(err).Warn("analysis unparseable, metrics only")
	} else {
		if result.Mood != "" {
			sentiment = result.Mood
		}
		summary = result.Summary
	}

	if err := w.repo.UpsertAnalysisReport(ctx, &store.AnalysisReport{
		ID:           ulid.Make().String(),
		SeniorID:     job.SeniorID,
		GuardianID:   job.GuardianID,
		Date:         job.Date,
		Sentiment:    sentiment,
		WordCount:    metrics.WordCount,
		TTR:          metrics.TTR,
		SpeakingRate: metrics.SpeakingRate,
		Summary:      summary,
	}); err != nil {
		return err
	}
	return w.repo.MarkLogsComplete(ctx, job.SeniorID, from, to)
}

func dayTranscript(logs []store.ConversationLog) string {
	var b strings.Builder
	for _, log := range logs {
		b.WriteString(llm.SpeakerDisplay(log.Speaker) + ": " + log.Transcript + "\n")
	}
	return b.String()
}

func workerConcurrency() int {
	n, err := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY"))
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "mysql" {
		return gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(cfg.DBDSN), &gorm.Config{})
}
