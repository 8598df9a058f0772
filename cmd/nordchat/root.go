package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nordlicht-IT-Solutions/nordlicht-chat-sdk-go/nordchat"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	URL        string
	User       string
	LogLevel   string

	cfg appConfig
}

// NewRootCommand creates the root command for the nordchat CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nordchat",
		Short: "Terminal client for the Nordlicht chat server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.URL != "" {
				cfg.SDK.URL = opts.URL
			}
			if opts.User != "" {
				cfg.User = opts.User
			}
			if opts.LogLevel != "" {
				cfg.LogLevel = opts.LogLevel
			}
			if err := cfg.SDK.Validate(); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to TOML config file")
	cmd.PersistentFlags().StringVar(&opts.URL, "url", "", "chat server WebSocket URL")
	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", "", "log in as this user")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error|off)")

	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewListCommand(opts, "rooms", "List rooms known to the server", (*nordchat.Client).GetRooms))
	cmd.AddCommand(NewListCommand(opts, "users", "List users known to the server", (*nordchat.Client).GetUsers))

	return cmd
}

// connect builds a client from the resolved config, waits for the socket
// and logs in when a user was configured. Without one, the persisted
// identity is used by the client on open.
func connect(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*nordchat.Client, error) {
	cfg := opts.cfg
	client := nordchat.NewClient(cfg.SDK)
	client.SetLogger(nordchat.NewZerologLogger(newLogger(cmd.ErrOrStderr(), cfg.LogLevel)))
	client.SetIdentityStore(cfg.identityStore())

	connectCtx := ctx
	if cfg.SDK.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.SDK.HandshakeTimeout)
		defer cancel()
	}
	if err := client.Connect(connectCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.SDK.URL, err)
	}
	if cfg.User != "" {
		if err := client.Login(ctx, cfg.User); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("login %s: %w", cfg.User, err)
		}
	}
	return client, nil
}
