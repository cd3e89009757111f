package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/osareniho-oni/jaffle-shop-pipeline/internal/catalog"
	"github.com/osareniho-oni/jaffle-shop-pipeline/internal/config"
	"github.com/osareniho-oni/jaffle-shop-pipeline/internal/destination"
	"github.com/osareniho-oni/jaffle-shop-pipeline/internal/etl"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/logger"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// Job names the pipeline and where it writes. The command runs exactly one job.
type Job struct {
	PipelineName string
	Destination  string
	Dataset      string
	Source       func() *models.Source
}

func DefaultJob() Job {
	return Job{
		PipelineName: "rest_api_jaffle_shop",
		Destination:  "duckdb",
		Dataset:      "rest_api_data",
		Source:       catalog.JaffleShopSource,
	}
}

func runPipeline(ctx context.Context, out io.Writer, job Job) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if err := logger.InitLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogFormat); err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := destination.New(ctx, destination.Options{
		Name:         job.Destination,
		Credentials:  cfg.Credentials(job.Destination),
		Dataset:      job.Dataset,
		PipelineName: job.PipelineName,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := loader.Close(); cerr != nil {
			logger.Warnf("Closing %s destination: %v", job.Destination, cerr)
		}
	}()

	httpOpts := etl.DefaultClientOptions()
	httpOpts.Timeout = config.Seconds(cfg.Runtime.RequestTimeout)
	httpOpts.MaxAttempts = cfg.Runtime.RequestMaxAttempts
	httpOpts.BackoffFactor = cfg.Runtime.RequestBackoffFactor
	httpOpts.MaxRetryDelay = config.Seconds(cfg.Runtime.RequestMaxRetryDelay)
	httpOpts.RateLimit = cfg.Runtime.RequestsPerSecond

	pipeline := etl.NewPipeline(etl.Options{
		Identity: etl.Identity{
			Name:        job.PipelineName,
			Destination: job.Destination,
			Dataset:     job.Dataset,
		},
		ExtractWorkers:   cfg.Extract.Workers,
		NormalizeWorkers: cfg.Normalize.Workers,
		LoadWorkers:      cfg.Load.Workers,
		BufferMaxItems:   cfg.Normalize.DataWriter.BufferMaxItems,
		FileMaxItems:     cfg.Normalize.DataWriter.FileMaxItems,
		HTTP:             httpOpts,
	}, loader, etl.NewStateStore(cfg.PipelinesDir))

	info, err := pipeline.Run(ctx, job.Source())
	if err != nil {
		return errors.Wrapf(err, "pipeline %s failed", job.PipelineName)
	}

	fmt.Fprintln(out, info)
	return nil
}
