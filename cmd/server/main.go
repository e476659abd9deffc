package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pintrader/pintrader-backend/internal/auth"
	"github.com/pintrader/pintrader-backend/internal/conf"
	"github.com/pintrader/pintrader-backend/internal/data"
	filebiz "github.com/pintrader/pintrader-backend/internal/file/biz"
	filedata "github.com/pintrader/pintrader-backend/internal/file/data"
	"github.com/pintrader/pintrader-backend/internal/file/processor"
	fileservice "github.com/pintrader/pintrader-backend/internal/file/service"
	"github.com/pintrader/pintrader-backend/internal/file/staging"
	"github.com/pintrader/pintrader-backend/internal/pkg/ipfs"
	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	"github.com/pintrader/pintrader-backend/internal/server"
	userbiz "github.com/pintrader/pintrader-backend/internal/user/biz"
	userdata "github.com/pintrader/pintrader-backend/internal/user/data"
	userservice "github.com/pintrader/pintrader-backend/internal/user/service"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	log, err := logger.NewWithOptions(
		logger.WithLevel(config.Log.Level),
		logger.WithFormat(config.Log.Format),
		logger.WithOutput(config.Log.Output),
		logger.WithCaller(config.Log.EnableCaller),
		logger.WithStacktrace(config.Log.EnableStacktrace),
		logger.WithFilename(config.Log.File.Filename),
		logger.WithMaxSize(config.Log.File.MaxSize),
		logger.WithMaxAge(config.Log.File.MaxAge),
		logger.WithMaxBackups(config.Log.File.MaxBackups),
		logger.WithCompress(config.Log.File.Compress),
	)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(log.Config()); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Initialize staging store
	stagingStore, err := newStagingStore(config, d)
	if err != nil {
		log.Fatal("failed to initialize staging store", zap.Error(err))
	}

	// Initialize repositories and use cases
	userRepo := userdata.NewUserRepo(d.DB)
	fileRepo := filedata.NewFileRepo(d.DB)

	userUseCase := userbiz.NewUserUseCase(userRepo, log)
	fileUseCase := filebiz.NewFileUseCase(fileRepo, stagingStore, config.Auth.VerifyMultihash, log)

	// Initialize services
	jwtManager := auth.NewJWTManager(config.Auth.JWTSecret)
	userService := userservice.NewUserService(userUseCase, jwtManager, log.Logger)
	fileService := fileservice.NewFileService(fileUseCase, userUseCase, log.Logger)

	// Optionally run the pinning processor inside the API server process
	procCtx, procCancel := context.WithCancel(context.Background())
	defer procCancel()

	if config.Server.RunProcessor {
		ipfsClient, err := ipfs.New(&ipfs.Config{
			APIAddr: config.IPFS.APIAddr,
			Timeout: config.IPFS.Timeout,
		}, log)
		if err != nil {
			log.Fatal("failed to initialize ipfs client", zap.Error(err))
		}

		proc := processor.New(
			fileRepo,
			stagingStore,
			processor.NewIPFSBackend(ipfsClient),
			processor.Config{
				Interval:      config.Processor.Interval,
				BatchSize:     config.Processor.BatchSize,
				StaleTimeout:  config.Processor.StaleTimeout,
				PinsPerSecond: config.Processor.PinsPerSecond,
				CleanupStaged: config.Processor.CleanupStaged,
			},
			log.Logger,
		)
		go proc.Run(procCtx)
	}

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(config, log, userService, fileService, d.RedisClient)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	procCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func newStagingStore(config *conf.Config, d *data.Data) (filebiz.StagingStore, error) {
	switch config.Staging.Backend {
	case "minio":
		return staging.NewMinioStore(context.Background(), d.MinIOClient, config.Staging.Bucket)
	case "local":
		return staging.NewLocalStore(config.Staging.Dir)
	default:
		return nil, fmt.Errorf("unknown staging backend: %q", config.Staging.Backend)
	}
}
