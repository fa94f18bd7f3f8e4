// Package cli missminutes 命令行入口。
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/app"
	"github.com/Malixamran-01/MissMinutes/internal/config"
	pkgconfig "github.com/Malixamran-01/MissMinutes/pkg/config"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
)

type options struct {
	configDir string
	env       string
}

// NewRootCommand 构建命令树
func NewRootCommand(version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "missminutes",
		Short:         "Task tracking with reminders, deadline escalation and daily summaries",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", pkgconfig.GetEnv("CONFIG_DIR", "config"), "directory containing base.yaml")
	root.PersistentFlags().StringVar(&opts.env, "env", pkgconfig.GetConfigEnv(), "configuration environment (local, production, ...)")

	root.AddCommand(
		serveCmd(opts),
		migrateCmd(opts),
		summaryCmd(opts),
		historyCmd(opts),
		relayCmd(opts),
	)
	return root
}

// Execute 运行命令并在出错时以非零状态退出
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp 加载配置、构建 App，并在 SIGINT/SIGTERM 时取消 ctx
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.env, opts.configDir)
	if err != nil {
		return err
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("Failed to initialize", zap.Error(err))
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
