// Command notebase manages records in embedded notebase databases and
// serves the notes API.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ainotebook/notebase/config"
	"github.com/ainotebook/notebase/database"
	_ "github.com/ainotebook/notebase/database/storage/badger"
	_ "github.com/ainotebook/notebase/database/storage/bbolt"
	_ "github.com/ainotebook/notebase/database/storage/hashmap"
	_ "github.com/ainotebook/notebase/database/storage/sqlite"
	"github.com/ainotebook/notebase/dataroot"
	"github.com/ainotebook/notebase/info"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/utils"
)

// Command annotations.
const (
	skipSetup  = "skip-setup"
	configOnly = "config-only"
)

func main() {
	info.Set("notebase", "", "MIT")

	err := execute(os.Stdout, os.Args[1:])
	log.Shutdown()
	if err != nil {
		os.Exit(1)
	}
}

// execute runs the command line and closes all databases afterwards.
func execute(out io.Writer, args []string) error {
	a := &app{out: out}
	cmd := a.rootCmd()
	cmd.SetArgs(args)

	err := cmd.Execute()
	if a.store != nil {
		if shutdownErr := database.Shutdown(); shutdownErr != nil {
			log.Errorf("failed to shut down database: %s", shutdownErr)
			if err == nil {
				err = shutdownErr
			}
		}
	}
	return err
}

// app holds the state shared by all commands.
type app struct {
	out        io.Writer
	configFile string
	output     string

	cfg   *config.Config
	store *database.Store
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebase",
		Short: "Manage notebase databases",
		Long: `notebase stores named records with free-form data in embedded databases
(bbolt, badger, sqlite or in-memory) and serves notes over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := cmd.Annotations[skipSetup]; ok {
				return nil
			}
			_, onlyConfig := cmd.Annotations[configOnly]
			return a.setup(cmd, onlyConfig)
		},
	}
	cmd.SetOut(a.out)

	flags := cmd.PersistentFlags()
	config.RegisterFlags(flags)
	flags.StringVar(&a.configFile, "config", "", "config file (default is notebase.yaml in the user config dir or the working dir)")
	flags.StringVarP(&a.output, "output", "o", "json", "output format: json or yaml")

	cmd.AddCommand(
		a.addCmd(),
		a.getCmd(),
		a.listCmd(),
		a.updateCmd(),
		a.setCmd(),
		a.unsetCmd(),
		a.deleteCmd(),
		a.clearCmd(),
		a.dropCmd(),
		a.serveCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command, onlyConfig bool) error {
	cfg, err := config.Load(cmd, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if onlyConfig {
		return nil
	}

	log.SetLogLevel(log.ParseLevel(cfg.LogLevel))
	log.SetOutput(os.Stderr, false)
	if err := log.Start(); err != nil && !errors.Is(err, log.ErrAlreadyStarted) {
		return fmt.Errorf("failed to start logging: %w", err)
	}

	err = dataroot.Initialize(cfg.DataDir, utils.PublicReadPermission)
	switch {
	case errors.Is(err, dataroot.ErrAlreadyInitialized):
		root, _ := dataroot.Root()
		if root.Path != cfg.DataDir {
			return fmt.Errorf("data root already set to %s", root.Path)
		}
	case err != nil:
		return fmt.Errorf("failed to initialize data root: %w", err)
	}
	root, err := dataroot.Root()
	if err != nil {
		return err
	}
	if err := database.Initialize(root); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	format, err := cfg.FormatID()
	if err != nil {
		return err
	}
	compression, err := cfg.CompressionID()
	if err != nil {
		return err
	}
	a.store = database.New(cfg.Database, cfg.Collection,
		database.WithStorageType(cfg.Storage),
		database.WithFormat(format),
		database.WithCompression(compression),
		database.WithBlockedTimeout(cfg.BlockedTimeout),
	)
	return nil
}
