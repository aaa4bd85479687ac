// Package commands implements the marketd command tree.
package commands

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudx-io/openmarket/config"
)

// app carries the state shared by subcommands once flags are parsed.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger zerolog.Logger
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"home":         config.HomeFlag,
	"log-level":    "log_level",
	"log-format":   "log_format",
	"http-addr":    "http_addr",
	"metrics-addr": "metrics_addr",
	"store":        "store",
	"lock":         "lock",
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".marketd"
	}
	return filepath.Join(home, ".marketd")
}

// NewRootCmd builds the marketd command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)
	config.InitEnv(a.v)

	root := &cobra.Command{
		Use:           "marketd",
		Short:         "Auction and offer transaction engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().String("home", defaultHome(), "directory holding config.{toml,yaml,json}")
	root.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().String("log-format", "json", "log format (json|console)")

	root.AddCommand(
		newServeCmd(a),
		newSweepCmd(a),
		newVerifyReceiptCmd(),
	)
	return root
}

// load binds set flags over env and file values, then reads the config.
func (a *app) load(cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	if err := config.ReadFile(a.v, a.v.GetString(config.HomeFlag)); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logger()
	return nil
}
