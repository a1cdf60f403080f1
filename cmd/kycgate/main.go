// Command kycgate runs the identity verification submission service: an API
// server hosting the guided submission workflow and a worker consuming
// post-submission tasks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"kycgate/internal/api"
	"kycgate/internal/blobstore"
	"kycgate/internal/config"
	"kycgate/internal/queue"
	"kycgate/internal/recordstore"
	"kycgate/internal/signing"
	"kycgate/internal/submit"
	"kycgate/internal/worker"
	"kycgate/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kycgate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "kycgate",
		Short:        "Identity verification submission service",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the submission API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

			blobs, local, err := newBlobStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init blob store: %w", err)
			}
			records, closeRecords, err := newRecordStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init record store: %w", err)
			}
			defer closeRecords()

			var notifier submit.Notifier
			if cfg.RedisAddr != "" {
				client := asynq.NewClient(asynq.RedisClientOpt{
					Addr:     cfg.RedisAddr,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				})
				defer client.Close()
				notifier = queue.NewNotifier(client)
			} else {
				logger.Warn("no redis configured, submission notifications disabled")
			}

			coordinator := submit.NewCoordinator(blobs, records, notifier, logger)
			srv := api.New(cfg, coordinator, workflow.DataURIEncoder{}, local, logger)
			return srv.Run(ctx)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the post-submission task worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.RedisAddr == "" {
				return fmt.Errorf("KYCGATE_REDIS_ADDR is required for the worker")
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

			server := asynq.NewServer(asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, asynq.Config{
				Concurrency: cfg.WorkerConcurrency,
			})
			processor := worker.NewProcessor(logger)

			go func() {
				<-ctx.Done()
				server.Shutdown()
			}()
			return server.Run(processor.Handler())
		},
	}
}

// newBlobStore returns the configured store and, for the local backend, the
// concrete Local store so the API can serve its signed download URLs.
func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, *blobstore.Local, error) {
	switch cfg.BlobBackend {
	case "s3":
		store, err := blobstore.NewMinIO(blobstore.MinIOConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			URLExpiry: cfg.SignedURLTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		signer := signing.NewSigner(cfg.SigningSecret)
		local, err := blobstore.NewLocal(cfg.LocalBlobDir, cfg.PublicBaseURL, signer, cfg.SignedURLTTL)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	}
}

func newRecordStore(ctx context.Context, cfg *config.Config) (recordstore.Store, func(), error) {
	switch cfg.RecordBackend {
	case "postgres":
		pool, err := recordstore.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := recordstore.NewPostgres(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		client, err := recordstore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			_ = client.Disconnect(context.Background())
		}
		return recordstore.NewMongo(client, cfg.MongoDatabase), closer, nil
	}
}
