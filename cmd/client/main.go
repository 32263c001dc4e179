package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"e2e_relay/internal/config"
	"e2e_relay/internal/identity"
	"e2e_relay/internal/service/app"
	"e2e_relay/internal/service/cache"
	"e2e_relay/internal/service/messenger"
	redisSvc "e2e_relay/internal/service/redis"
	"e2e_relay/internal/utils/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const mnemonicEnv = "RELAY_MNEMONIC"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath   string
		mnemonicFile string
	)

	root := &cobra.Command{
		Use:          "relay-client",
		Short:        "End-to-end encrypted chat over a store-and-forward relay",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/client.yaml", "configuration file")
	root.PersistentFlags().StringVar(&mnemonicFile, "mnemonic-file", "", "file holding the 12-word recovery phrase (default $"+mnemonicEnv+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Generate a recovery phrase and print the identity it derives",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				phrase, err := identity.GenerateMnemonic()
				if err != nil {
					return err
				}
				id, err := identity.FromMnemonic(phrase)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recovery phrase: %s\nidentity:        %s\n", phrase, id.ID())
				return nil
			},
		},
		&cobra.Command{
			Use:   "id",
			Short: "Print the identity of the configured recovery phrase",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := loadIdentity(mnemonicFile)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id.ID())
				return nil
			},
		},
		&cobra.Command{
			Use:   "chat <counterpart-identity>",
			Short: "Open a chat with another identity",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := identity.ParseID(args[0]); err != nil {
					return fmt.Errorf("counterpart: %w", err)
				}
				cfg, err := config.LoadClient(configPath)
				if err != nil {
					return err
				}
				id, err := loadIdentity(mnemonicFile)
				if err != nil {
					return err
				}
				return chat(cmd.Context(), cfg, id, args[0])
			},
		},
	)
	return root
}

func loadIdentity(mnemonicFile string) (*identity.Identity, error) {
	phrase := os.Getenv(mnemonicEnv)
	if mnemonicFile != "" {
		data, err := os.ReadFile(mnemonicFile)
		if err != nil {
			return nil, fmt.Errorf("read mnemonic: %w", err)
		}
		phrase = string(data)
	}
	if strings.TrimSpace(phrase) == "" {
		return nil, errors.New("no recovery phrase: use --mnemonic-file or " + mnemonicEnv)
	}
	return identity.FromMnemonic(phrase)
}

func chat(ctx context.Context, cfg *config.Client, id *identity.Identity, to string) error {
	// the terminal belongs to the UI
	if err := log.InitFile(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	local := cache.New(backend, id.ID())
	defer local.Lock()

	m, err := messenger.New(id, local, messenger.Options{
		URL:       cfg.RelayURL,
		InboxSize: cfg.InboxSize,
	})
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.Connect(dialCtx); err != nil {
		return err
	}
	defer m.Close()

	ui := app.NewApp(m)
	go func() {
		<-ctx.Done()
		ui.Stop()
	}()
	return ui.Run(ctx, to)
}

func openCache(ctx context.Context, cfg *config.Client) (cache.Backend, func(), error) {
	if cfg.Cache == config.CacheMemory {
		return cache.NewMemoryBackend(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rs, err := redisSvc.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}, nil
}
