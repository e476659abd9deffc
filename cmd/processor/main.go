package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pintrader/pintrader-backend/internal/conf"
	"github.com/pintrader/pintrader-backend/internal/data"
	filebiz "github.com/pintrader/pintrader-backend/internal/file/biz"
	filedata "github.com/pintrader/pintrader-backend/internal/file/data"
	"github.com/pintrader/pintrader-backend/internal/file/processor"
	"github.com/pintrader/pintrader-backend/internal/file/staging"
	"github.com/pintrader/pintrader-backend/internal/pkg/ipfs"
	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

// Standalone pinning processor. Runs the same polling loop the API server
// can embed, but as its own process so it can be deployed and scaled
// independently of the HTTP gateway.
func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

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

	d, cleanup, err := data.NewData(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	stagingStore, err := newStagingStore(config, d)
	if err != nil {
		log.Fatal("failed to initialize staging store", zap.Error(err))
	}

	ipfsClient, err := ipfs.New(&ipfs.Config{
		APIAddr: config.IPFS.APIAddr,
		Timeout: config.IPFS.Timeout,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize ipfs client", zap.Error(err))
	}

	proc := processor.New(
		filedata.NewFileRepo(d.DB),
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down processor...")
		cancel()
	}()

	proc.Run(ctx)

	log.Info("processor exited")
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
