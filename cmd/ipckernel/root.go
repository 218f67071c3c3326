package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Prajjawalk/ipc/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "IPCKERNEL"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "ipckernel",
	Short: "Run actors on a kernel with the recommendation syscall",
	Long: `ipckernel hosts a VM kernel that forwards every base capability and adds
my_custom_syscall. It applies messages to the customsyscall actor, natively or
from a wasm build, and reports receipts with gas used.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), viper.GetString("log_level")))
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ipckernel.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig resolves the config file from the flag, the environment or the
// home directory.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	switch {
	case cfgFile != "":
		viper.Set("config", cfgFile)
	case viper.GetString("config") != "":
		// IPCKERNEL_CONFIG
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Debug("no home directory, using default config", "error", err)
			return
		}
		viper.Set("config", filepath.Join(home, ".ipckernel.yaml"))
	}
}

// loadConfig loads the resolved config file. The log level given on the
// command line or in the environment overrides the file.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		slog.Debug("using config file", "file", path)
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelInfo
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = slog.LevelInfo
		}
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
