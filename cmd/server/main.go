package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"e2e_relay/internal/config"
	"e2e_relay/internal/presence"
	"e2e_relay/internal/relay"
	"e2e_relay/internal/repository/message"
	"e2e_relay/internal/repository/user"
	"e2e_relay/internal/service/server"
	"e2e_relay/internal/utils/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		devLog     bool
	)

	cmd := &cobra.Command{
		Use:          "relay-server",
		Short:        "Store-and-forward relay for end-to-end encrypted messages",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return err
			}
			if err := log.Init(cfg.LogLevel, devLog); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "configuration file")
	cmd.Flags().BoolVar(&devLog, "dev", false, "human readable debug logging")
	return cmd
}

func run(ctx context.Context, cfg *config.Server) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	messages, users, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := relay.New(presence.NewRegistry(), messages, users, relay.NewMetrics(reg), relay.Options{
		MaxPayloadBytes: cfg.Relay.MaxPayloadBytes,
		SendRPS:         cfg.Relay.SendRPS,
		SendBurst:       cfg.Relay.SendBurst,
		PushTimeout:     cfg.Connection.WriteTimeout,
	})

	opts := server.Options{
		Addr:          cfg.ListenAddr,
		QueueSize:     cfg.Connection.QueueSize,
		WriteTimeout:  cfg.Connection.WriteTimeout,
		OpTimeout:     cfg.Connection.OpTimeout,
		MaxFrameBytes: cfg.Connection.MaxFrameBytes,
	}
	if cfg.Metrics {
		opts.Gatherer = reg
	}
	s := server.NewHttpServer(r, opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Server) (message.Store, user.Repository, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store, messages are lost on restart")
		return message.NewMemoryStore(), user.NewMemoryRepo(), func() {}, nil
	}

	client, err := initMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			log.Warn("mongo disconnect failed", zap.Error(err))
		}
	}

	db := client.Database(cfg.Mongo.Database)
	messages := message.NewMongoStore(db)
	users := user.NewUserRepo(db)

	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := messages.EnsureIndexes(ictx); err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("message indexes: %w", err)
	}
	if err := users.EnsureIndexes(ictx); err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("user indexes: %w", err)
	}

	log.Info("connected to mongo", zap.String("database", cfg.Mongo.Database))
	return messages, users, closeFn, nil
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
