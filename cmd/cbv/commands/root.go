package commands

import (
	"context"
	"fmt"
	"os"

	"cbvault/pkg/app"
	"cbvault/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	CBV *app.App
)

// standalone 标记不需要内容存储和元数据库的命令
const standalone = "standalone"

var rootCmd = &cobra.Command{
	Use:           "cbv",
	Short:         "cbvault: keep a content-addressed site in sync with a local directory",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[standalone] == "true" {
			return nil
		}
		// 测试里可能已经注入
		if CBV != nil {
			return nil
		}

		var err error
		CBV, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize cbvault: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if CBV == nil {
			return nil
		}
		err := CBV.Close()
		CBV = nil
		return err
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, ./.cbv/config.yaml or $HOME/.cbv/config.yaml)")

	// 2. 常用配置项也可以用参数覆盖，并绑定到 Viper
	rootCmd.PersistentFlags().String("store", "", "content store: ipfs, http or embedded")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	mustBind("store.type", "store")
	mustBind("log.level", "log-level")
}

func mustBind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}

func requireApp() error {
	if CBV == nil {
		return fmt.Errorf("app not initialized")
	}
	return nil
}
