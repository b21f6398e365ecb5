package main

import (
	"context"
	"time"

	"tripchat/internal/config"
	"tripchat/internal/repositories/interfaces"
	"tripchat/internal/repositories/memory"
	"tripchat/internal/repositories/mongodb"
	"tripchat/internal/services"
	"tripchat/pkg/cache"
	"tripchat/pkg/database"
	"tripchat/pkg/logger"
	"tripchat/pkg/maps"
	"tripchat/pkg/push"
	"tripchat/pkg/sms"
	"tripchat/pkg/storage"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type repositories struct {
	bookings interfaces.BookingRepository
	trips    interfaces.TripRepository
	messages interfaces.MessageRepository
	users    interfaces.UserRepository
	ping     func(context.Context) error
	close    func()
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*repositories, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("Using in-memory repositories; data is lost on restart")
		mem := memory.NewStore()
		return &repositories{
			bookings: mem.Bookings,
			trips:    mem.Trips,
			messages: mem.Messages,
			users:    mem.Users,
			close:    func() {},
		}, nil
	}

	db, err := database.NewMongoDB(ctx, &database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		AppName:        cfg.App.Name,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		return nil, err
	}

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := database.NewMigrator(db.Database, log).Up(migrateCtx); err != nil {
		db.Close()
		return nil, err
	}

	return &repositories{
		bookings: mongodb.NewBookingRepository(db.Database),
		trips:    mongodb.NewTripRepository(db.Database),
		messages: mongodb.NewMessageRepository(db.Database),
		users:    mongodb.NewUserRepository(db.Database),
		ping:     db.Ping,
		close: func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("Failed to close mongodb")
			}
		},
	}, nil
}

func openCache(cfg *config.RedisConfig, log *logger.Logger) (cache.Store, error) {
	if !cfg.Enabled {
		log.Warn("Redis disabled; webhook dedup and rate limits are per-process")
		return cache.NewMemoryCache(), nil
	}
	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}
	return redisCache, nil
}

func newRelicApp(cfg *config.MonitoringConfig, log *logger.Logger) *newrelic.Application {
	if !cfg.NewRelicEnabled || cfg.NewRelicLicenseKey == "" {
		return nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.NewRelicAppName),
		newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize New Relic")
		return nil
	}
	return app
}

func newSMSProvider(ctx context.Context, cfg *config.SMSConfig, log *logger.Logger) (sms.SMSProvider, string) {
	switch cfg.Provider {
	case "twilio":
		if cfg.Twilio.AccountSID == "" {
			break
		}
		return sms.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber), cfg.Twilio.FromNumber
	case "sns":
		provider, err := sms.NewAWSSNSProvider(ctx, cfg.AWS.Region, cfg.DefaultFrom)
		if err != nil {
			log.WithError(err).Warn("SNS unavailable, booking SMS disabled")
			return nil, ""
		}
		return provider, cfg.DefaultFrom
	}
	return nil, ""
}

func newNotificationService(ctx context.Context, cfg *config.Config, store *repositories, log *logger.Logger) *services.NotificationService {
	smsProvider, from := newSMSProvider(ctx, cfg.SMS, log)

	var fcm, apns push.Provider
	if cfg.Push.FCM.ProjectID != "" {
		provider, err := push.NewFCMProvider(ctx, cfg.Push.FCM.ProjectID, cfg.Push.FCM.Credentials)
		if err != nil {
			log.WithError(err).Warn("FCM unavailable")
		} else {
			fcm = provider
		}
	}
	if cfg.Push.APNS.KeyFile != "" {
		provider, err := push.NewAPNSProvider(cfg.Push.APNS.KeyFile, cfg.Push.APNS.KeyID, cfg.Push.APNS.TeamID,
			cfg.Push.APNS.BundleID, cfg.Push.APNS.Production)
		if err != nil {
			log.WithError(err).Warn("APNs unavailable")
		} else {
			apns = provider
		}
	}

	return services.NewNotificationService(store.users, smsProvider, from, fcm, apns, log)
}

func newGeocoder(cfg *config.MapsConfig, log *logger.Logger) maps.MapsProvider {
	if cfg.GoogleMaps.APIKey == "" {
		return nil
	}
	provider, err := maps.NewGoogleMapsProvider(cfg.GoogleMaps.APIKey, cfg.Language)
	if err != nil {
		log.WithError(err).Warn("Google Maps unavailable, location addresses disabled")
		return nil
	}
	return provider
}

func newArchiveService(ctx context.Context, cfg *config.StorageConfig, messages interfaces.MessageRepository, log *logger.Logger) (*services.ArchiveService, func(), error) {
	var (
		store   storage.StorageProvider
		closeFn = func() {}
	)
	switch cfg.Provider {
	case "s3":
		s3, err := storage.NewAWSS3Storage(ctx, cfg.AWS.Region, cfg.AWS.Bucket, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey)
		if err != nil {
			return nil, nil, err
		}
		store = s3
	case "gcs":
		gcs, err := storage.NewGCPStorage(ctx, cfg.GCP.ProjectID, cfg.GCP.Bucket, cfg.GCP.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		store = gcs
		closeFn = func() { gcs.Close() }
	default:
		local, err := storage.NewLocalStorage(cfg.Local.BasePath, cfg.Local.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		store = local
	}
	return services.NewArchiveService(messages, store, cfg.ArchivePrefix, log), closeFn, nil
}
