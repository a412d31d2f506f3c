package backend

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jghoshh/habitual/backend/config"
	"github.com/jghoshh/habitual/backend/logging"
	"github.com/jghoshh/habitual/backend/queue"
	"github.com/jghoshh/habitual/backend/server"
	"github.com/jghoshh/habitual/backend/server/auth"
	"github.com/jghoshh/habitual/backend/server/notifications/email"
	"github.com/jghoshh/habitual/backend/service"
	cache "github.com/jghoshh/habitual/backend/storage/cache"
	storage "github.com/jghoshh/habitual/backend/storage/persistent"
	"github.com/sirupsen/logrus"
)

// numMilestoneProducers is the number of producers on the milestone queue.
const numMilestoneProducers = 1

// RunBackend loads the configuration from envFile and the environment,
// connects the stores and the queue, and serves the API until SIGINT or SIGTERM.
func RunBackend(envFile string) {
	cfg, err := config.Load(envFile)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStorage(cfg.DBName, cfg.MongoURI)
	if err != nil {
		logrus.WithError(err).Fatal("Error connecting to MongoDB")
	}
	defer store.Disconnect()

	versionCache, err := cache.NewCache(cfg.RedisURL)
	if err != nil {
		logrus.WithError(err).Fatal("Error connecting to Redis")
	}
	defer versionCache.Disconnect()

	var notifier service.MilestoneNotifier
	if cfg.RabbitMQURL != "" {
		send := queue.SendToLog
		if cfg.SMTPEmail != "" {
			if err := email.InitEmailService(cfg.SMTPEmail, cfg.SMTPPassword); err != nil {
				logrus.WithError(err).Warn("Email service unavailable, milestones will only be logged")
			} else {
				send = queue.SendByEmail
			}
		}

		milestoneQueue, err := queue.BuildMilestoneQueue(cfg.RabbitMQURL, numMilestoneProducers, cfg.NumConsumers, versionCache, send)
		if err != nil {
			logrus.WithError(err).Fatal("Error building milestone queue")
		}
		defer milestoneQueue.Close()

		consumers := milestoneQueue.StartConsumers(ctx)
		defer consumers.Wait()

		notifier = &queue.Notifier{Queue: milestoneQueue}
	} else {
		logrus.Info("RABBITMQ_URL not set, milestone notifications disabled")
	}

	svc := service.New(store, service.Options{
		Cache:     versionCache,
		Notifier:  notifier,
		Location:  cfg.Location,
		WeekStart: &cfg.WeekStart,
	})

	srv := server.New(svc, auth.NewVerifier(cfg.SigningKey))
	err = srv.Start(ctx, cfg.ServerURL)
	stop()
	if err != nil {
		logrus.WithError(err).Error("Server stopped")
		return
	}
	logrus.Info("Server shut down")
}
