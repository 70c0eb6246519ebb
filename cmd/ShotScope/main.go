package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/RinkLab/ShotScope/internal/analysis"
	"github.com/RinkLab/ShotScope/internal/api"
	"github.com/RinkLab/ShotScope/internal/genai"
	"github.com/RinkLab/ShotScope/internal/lockfile"
	"github.com/RinkLab/ShotScope/internal/notify"
	"github.com/RinkLab/ShotScope/internal/store"
	"github.com/RinkLab/ShotScope/internal/util"
	"github.com/RinkLab/ShotScope/internal/validation"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ShotScope state data
	DefaultStateDir = "/var/lib/shotscope"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "shotscope.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// Hold the state directory lock for the lifetime of the process so two
	// instances never share one SQLite file.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	gateOpts := buildGateOptions(flags)
	svcOpts := buildServiceOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping ShotScope with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, genaiOpts, gateOpts, svcOpts, apiOpts); err != nil {
		slog.Error("ShotScope failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("ShotScope exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	GeminiKey   string
	OpenAIKey   string
	APIAddr     string
	FailClosed  bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir   *string
	dbDSN      *string
	geminiKey  *string
	openaiKey  *string
	apiAddr    *string
	failClosed *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("SHOTSCOPE_STATE_DIR"),
		GeminiKey:   os.Getenv("GEMINI_API_KEY"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		FailClosed:  util.ParseBoolEnv("SHOTSCOPE_VALIDATION_FAIL_CLOSED", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SHOTSCOPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// With no database URL, default to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SHOTSCOPE_STATE_DIR", config.StateDir,
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"VALIDATION_FAIL_CLOSED", config.FailClosed)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for ShotScope data (overrides $SHOTSCOPE_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		geminiKey:  flag.String("gemini-api-key", config.GeminiKey, "Gemini API key (overrides $GEMINI_API_KEY)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for coach notes (overrides $OPENAI_API_KEY)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		failClosed: flag.Bool("validation-fail-closed", config.FailClosed, "surface validation failures instead of assuming validity"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"geminiKeySet", *flags.geminiKey != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"failClosed", *flags.failClosed)

	// Follow an overridden state directory when the DSN still points at the
	// default SQLite location.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI client configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.geminiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.geminiKey))
	}
	return genaiOpts
}

// buildGateOptions constructs validation gate configuration options
func buildGateOptions(flags Flags) []validation.Option {
	var gateOpts []validation.Option
	if *flags.failClosed {
		gateOpts = append(gateOpts, validation.WithFailClosed())
	}
	return gateOpts
}

// buildServiceOptions constructs analysis service options for the optional
// coach-notes and SMS modules.
func buildServiceOptions(flags Flags) []analysis.Option {
	var svcOpts []analysis.Option

	if *flags.openaiKey != "" {
		coach, err := genai.NewCoachClient(*flags.openaiKey)
		if err != nil {
			slog.Warn("Coach notes disabled", "error", err)
		} else {
			slog.Debug("Coach notes enabled")
			svcOpts = append(svcOpts, analysis.WithNotesGenerator(coach))
		}
	}

	if os.Getenv("TWILIO_ACCOUNT_SID") != "" {
		notifier, err := notify.NewTwilioNotifier()
		if err != nil {
			slog.Warn("SMS notifications disabled", "error", err)
		} else {
			slog.Debug("SMS notifications enabled")
			svcOpts = append(svcOpts, analysis.WithNotifier(notifier))
		}
	}

	return svcOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
