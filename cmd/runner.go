package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodlist/internal/repositories"
	"github.com/desertthunder/moodlist/internal/services"
	"github.com/desertthunder/moodlist/internal/shared"
	"github.com/desertthunder/moodlist/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and the resolution engine are initialized lazily so commands that
// never touch them (setup, auth) don't open the database.
type Runner struct {
	config     *shared.Config
	configPath string
	generator  services.SuggestionGenerator
	spotify    services.CatalogService
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	engine     *tasks.PlaylistEngine
	cancel     *tasks.CancelFlag

	db     *sql.DB
	runs   *repositories.RunRepository
	tracks *repositories.TrackRepository
	cache  *repositories.TrackCacheAdapter
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Generator  services.SuggestionGenerator
	Spotify    services.CatalogService
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Engine     *tasks.PlaylistEngine
	DB         *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	runner := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		generator:  opts.Generator,
		spotify:    opts.Spotify,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		engine:     opts.Engine,
		cancel:     tasks.NewCancelFlag(),
	}

	if opts.DB != nil {
		runner.initStorage(opts.DB)
	}

	return runner
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, generateCommand, historyCommand, doctorCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database handle if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// openStorage opens the configured database on first use.
//
// Migrations run on every open; they are idempotent, so commands work
// without an explicit setup step.
func (r *Runner) openStorage() error {
	if r.runs != nil {
		return nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.initStorage(db)
	return nil
}

// initStorage wires repositories onto an open database handle.
func (r *Runner) initStorage(db *sql.DB) {
	r.db = db
	r.runs = repositories.NewRunRepository(db)
	r.tracks = repositories.NewTrackRepository(db)
	r.cache = repositories.NewTrackCacheAdapter(r.tracks)
	if err := r.cache.Warm(); err != nil {
		r.logger.Warn("failed to warm track cache", "error", err)
	}
}

// ensureEngine builds the resolution engine on first use.
//
// Requires the generator, the catalog service, and storage (for the track
// cache). Callers mutate r.config.Generation before the first call to apply
// per-command overrides.
func (r *Runner) ensureEngine() (*tasks.PlaylistEngine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	if r.generator == nil {
		return nil, fmt.Errorf("%w: Gemini generator not initialized (set credentials.gemini.api_key or GEMINI_API_KEY)", shared.ErrServiceUnavailable)
	}
	if r.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify service not initialized (set credentials.spotify in config.toml)", shared.ErrServiceUnavailable)
	}
	if err := r.openStorage(); err != nil {
		return nil, err
	}

	opts := tasks.OptsFromConfig(r.config.Generation)
	opts.Cancel = r.cancel
	r.engine = tasks.NewPlaylistEngine(r.generator, r.spotify, r.cache, opts)

	return r.engine, nil
}

// saveTokens writes OAuth tokens into the config and persists it when a
// config path is known.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrInvalidArgument)
	}

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if r.configPath == "" {
		return nil
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

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

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
