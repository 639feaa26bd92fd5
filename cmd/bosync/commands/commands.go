package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/printer"
	storageio "github.com/slok/bosync/internal/storage/io"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DataDir    string
	ConfigPath string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory with the queue database, locks and error reports.").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("config", "Path to a YAML or TOML configuration file.").StringVar(&c.ConfigPath)

	return c
}

// LoadConfig returns the configuration file settings over the defaults.
func (c RootCommand) LoadConfig(ctx context.Context) (model.Config, error) {
	if c.ConfigPath == "" {
		return model.DefaultConfig(), nil
	}

	abs, err := filepath.Abs(c.ConfigPath)
	if err != nil {
		return model.Config{}, fmt.Errorf("invalid config path: %w", err)
	}

	repo := storageio.NewConfigRepository(os.DirFS(filepath.Dir(abs)))
	cfg, err := repo.GetConfig(ctx, filepath.Base(abs))
	if err != nil {
		return model.Config{}, fmt.Errorf("could not load config: %w", err)
	}

	return cfg, nil
}

func newPrinter(format string, w io.Writer) printer.Printer {
	switch format {
	case "json":
		return printer.NewJSONPrinter(w)
	default: // table
		return printer.NewTablePrinter(w)
	}
}
