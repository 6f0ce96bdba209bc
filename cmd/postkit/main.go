package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eringen/postkit"
)

// version is set at build time via ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "postkit",
	Short: "blog engine with portable post archives",
	Example: `postkit serve
postkit migrate status
postkit export my-post --out my-post.zip
postkit export 1 2 3 --no-assets
postkit import posts-export.zip --owner 1`,
	SilenceUsage: true,
}

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("POSTKIT_CONFIG"), "path to a TOML config file")
	rootCmd.AddCommand(serveCmd(), migrateCmd(), exportCmd(), importCmd(), versionCmd())
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}

func loadConfig() (postkit.SiteConfig, error) {
	cfg, err := postkit.LoadConfig(configPath)
	if err != nil {
		return postkit.SiteConfig{}, err
	}
	return cfg, nil
}

// openApp initializes an App without serving, for commands that work on
// storage directly.
func openApp(ctx context.Context) (*postkit.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	app := postkit.New(cfg, postkit.DefaultViews())
	if err := app.Init(ctx); err != nil {
		return nil, err
	}
	app.Log.SetOutput(os.Stderr)
	return app, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the postkit version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "postkit %s\n", version)
		},
	}
}

func logger() *logrus.Entry {
	return logrus.WithField("cmd", "postkit")
}
