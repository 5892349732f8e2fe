// Package cmd implements the ggnet-core command line: a cobra root command
// with viper-backed configuration (config file + GGNET_ env prefix + flags,
// in that precedence order).
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ggnet/ggnet-core/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ggnet-core",
		Short:        "ggnet-core - diskless network boot control plane",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("root-dir", "", "root data directory")
	cmd.PersistentFlags().String("run-dir", "", "runtime directory")
	cmd.PersistentFlags().String("tftp-root", "", "TFTP root directory")
	cmd.PersistentFlags().String("dhcp-config-path", "", "DHCP config file path")
	cmd.PersistentFlags().String("portal-ip", "", "iSCSI portal IP advertised to initiators")
	cmd.PersistentFlags().String("http-addr", "", "HTTP API listen address")

	_ = viper.BindPFlag("root_dir", cmd.PersistentFlags().Lookup("root-dir"))
	_ = viper.BindPFlag("run_dir", cmd.PersistentFlags().Lookup("run-dir"))
	_ = viper.BindPFlag("tftp_root", cmd.PersistentFlags().Lookup("tftp-root"))
	_ = viper.BindPFlag("dhcp_config_path", cmd.PersistentFlags().Lookup("dhcp-config-path"))
	_ = viper.BindPFlag("portal_ip", cmd.PersistentFlags().Lookup("portal-ip"))
	_ = viper.BindPFlag("http_addr", cmd.PersistentFlags().Lookup("http-addr"))

	viper.SetEnvPrefix("GGNET")
	viper.AutomaticEnv()

	cmd.AddCommand(serveCommand())
	cmd.AddCommand(gcCommand())

	return cmd
}()

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		// No config file is OK; a corrupt/unreadable one is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if err := conf.EnsureDirs(); err != nil {
		return fmt.Errorf("ensure dirs: %w", err)
	}
	if conf.ConversionPoolSize <= 0 {
		conf.ConversionPoolSize = runtime.NumCPU()
	}

	return conf.SetupLogging()
}
