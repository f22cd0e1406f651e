package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jjcore/jjcore"
)

var (
	repoDir   string
	backend   string
	colocated bool
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "jjcore",
	Short: "Change-centric version control over a Git object store",
	Long: `jjcore tracks work as changes with stable identifiers that survive
rewrites. There is no staging area: file operations implicitly modify
the checked-out change, and every mutation is recorded in an operation
log that undo can roll back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()
		initLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "R", ".", "repository working directory")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "git backend: memory or git (default from config)")
	rootCmd.PersistentFlags().BoolVar(&colocated, "colocated", false, "mirror bookmarks/tags to git refs")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr as well as the log file")
}

// initConfig wires viper: flags > environment (JJCORE_*) > config file.
func initConfig() {
	viper.SetConfigName("jjcore")
	viper.SetConfigType("toml")
	viper.AddConfigPath(repoDir)
	viper.AddConfigPath("$HOME/.config/jjcore")
	viper.SetEnvPrefix("JJCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("backend", "memory")
	viper.SetDefault("log.max_size_mb", 10)
	viper.SetDefault("log.max_backups", 3)
	_ = viper.ReadInConfig()
}

// initLogging sends structured logs to a rotating file under the
// metadata directory, plus stderr when --verbose.
func initLogging() {
	logPath := filepath.Join(repoDir, jjcore.MetaDirName, "jjcore.log")
	rotating := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt("log.max_size_mb"),
		MaxBackups: viper.GetInt("log.max_backups"),
		Compress:   true,
	}
	var w io.Writer = rotating
	if verbose {
		w = io.MultiWriter(rotating, os.Stderr)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, nil)))
}

// openRepo constructs the repository handle shared by every subcommand.
func openRepo() (*jjcore.Handle, error) {
	be := backend
	if be == "" {
		be = viper.GetString("backend")
	}
	return jjcore.CreateRepository(jjcore.Options{
		Dir:          repoDir,
		Backend:      be,
		Colocated:    colocated,
		UserName:     viper.GetString("user.name"),
		UserEmail:    viper.GetString("user.email"),
		QueryIndex:   viper.GetBool("queryindex"),
		WatchEnabled: viper.GetBool("watch"),
	})
}
