package data

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pintrader/pintrader-backend/internal/conf"
	filedata "github.com/pintrader/pintrader-backend/internal/file/data"
	userdata "github.com/pintrader/pintrader-backend/internal/user/data"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Data struct {
	DB          *gorm.DB
	RedisClient *redis.Client
	MinIOClient *minio.Client
	Logger      *zap.Logger
}

func NewData(config *conf.Config, log *zap.Logger) (*Data, func(), error) {
	// Initialize PostgreSQL
	db, err := initDB(config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize Redis
	redisClient := initRedis(config)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// Initialize MinIO only when it backs the staging store
	var minioClient *minio.Client
	if config.Staging.Backend == "minio" {
		minioClient, err = initMinIO(config)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init minio: %w", err)
		}
	}

	d := &Data{
		DB:          db,
		RedisClient: redisClient,
		MinIOClient: minioClient,
		Logger:      log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}

		if redisClient != nil {
			redisClient.Close()
		}
	}

	return d, cleanup, nil
}

func initDB(config *conf.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// 把底层唯一索引冲突翻译成 gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Auto migrate
	if err := userdata.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate users: %w", err)
	}
	if err := filedata.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate files: %w", err)
	}

	log.Info("database initialized successfully")
	return db, nil
}

func initRedis(config *conf.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr(),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
}

func initMinIO(config *conf.Config) (*minio.Client, error) {
	return minio.New(config.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.MinIO.AccessKey, config.MinIO.SecretKey, ""),
		Secure: config.MinIO.UseSSL,
	})
}
