// Package cli implements bridgectl, the tool that provisions the
// credential store and drives the bridge from the command line.
package cli

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/niclabs/keychain-bridge/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = xlog.NewPackageLogger("github.com/niclabs/keychain-bridge", "cli")

var (
	configFile string
	v          *viper.Viper
	conf       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bridgectl",
	Short: "Manage the keychain bridge credential store",
	Long: `bridgectl imports identities and trusted certificates into the
credential store of the keychain bridge, and lists or uses the tokens
the bridge exposes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentPreRunE = loadConfig
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is config.yaml in /etc/keychain-bridge, $HOME/.keychain-bridge or .)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (TRACE, DEBUG, INFO, NOTICE, WARNING, ERROR)")

	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(signCmd)
}

func loadConfig(*cobra.Command, []string) error {
	v = config.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		return errors.WithStack(err)
	}
	var err error
	if conf, err = config.Load(v); err != nil {
		return err
	}
	return config.SetupLogging(&conf.Log)
}
