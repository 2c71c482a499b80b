package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loomhq/loom/pkg/logger"
	"github.com/loomhq/loom/pkg/version"
)

const configFlagName = "config"
const versionFlagName = "version"

var cfgFile string
var versionRequested bool

// addConfigFlag adds the --config flag and wires viper: file values are
// overridden by LOOM_-prefixed environment variables, which are in turn
// overridden by explicit command-line flags.
func addConfigFlag(basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from the specified `FILE`.")

	viper.AutomaticEnv()
	viper.SetEnvPrefix(strings.ReplaceAll(strings.ToUpper(basename), "-", "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(".")
			if names := strings.Split(basename, "-"); len(names) > 1 {
				viper.AddConfigPath(filepath.Join(homeDir(), "."+names[0]))
			}
			viper.SetConfigName(basename)
		}

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				logger.Warn("[App] failed to read configuration file: %v", err)
			}
			return
		}

		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			logger.Info("[App] configuration file changed: %s", e.Name)
		})
	})
}

// bindConfig merges flag values with viper and unmarshals into options.
func bindConfig(cmd *cobra.Command, options CliOptions) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if options == nil {
		return nil
	}
	if err := viper.Unmarshal(options); err != nil {
		return fmt.Errorf("unmarshal configuration: %w", err)
	}
	return nil
}

func addVersionFlag(fs *pflag.FlagSet) {
	fs.BoolVar(&versionRequested, versionFlagName, false, "Print version information and quit.")
}

func printVersionAndExitIfRequested() {
	if versionRequested {
		fmt.Printf("%s\n", version.Get())
		os.Exit(0)
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
