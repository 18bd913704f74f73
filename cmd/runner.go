package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spotlist/internal/repositories"
	"github.com/desertthunder/spotlist/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	logger      *log.Logger
	output      io.Writer
	interactive func() bool
	openBrowser func(url string) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config flag on first use.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Logger      *log.Logger
	Output      io.Writer
	Interactive func() bool            // Reports whether a user can open the auth URL, defaults to a TTY check
	OpenBrowser func(url string) error // Defaults to [shared.OpenBrowser]
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Interactive == nil {
		opts.Interactive = stdoutIsTerminal
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		logger:      opts.Logger,
		output:      opts.Output,
		interactive: opts.Interactive,
		openBrowser: opts.OpenBrowser,
	}
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		importCommand, authCommand, convertCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the file named by --config once, applies .env overrides and validates the result.
//
// A missing file falls back to the embedded defaults.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	level := log.InfoLevel
	defer func() {
		if cmd.Bool("verbose") {
			level = log.DebugLevel
		}
		shared.SetLogLevel(r.logger, level)
	}()

	if r.config != nil {
		level = shared.ParseLogLevel(r.config.Log.Level)
		return r.config, nil
	}

	path := cmd.String("config")
	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return nil, err
		}
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	shared.LoadEnv(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r.config = config
	r.configPath = path
	level = shared.ParseLogLevel(config.Log.Level)
	return config, nil
}

// openRepository opens the run history database, applying pending migrations.
func (r *Runner) openRepository(config *shared.Config) (*repositories.RunRepository, func(), error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if config.Database.Path != ":memory:" {
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
	}
	return repositories.NewRunRepository(db), closeDB, nil
}

// saveTokens stores token in the config and writes it back to the config file, if there is one.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrInvalidConfig)
	}

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if r.configPath == "" {
		return nil
	}

	if err := shared.SaveToken(r.configPath, token); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.logger.Debug("tokens saved", "path", r.configPath)
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
