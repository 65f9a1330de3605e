package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/bkoseoglu/faturalog/internal/bill"
	"github.com/bkoseoglu/faturalog/internal/extraction"
	"github.com/bkoseoglu/faturalog/internal/kv"
	"github.com/bkoseoglu/faturalog/internal/reminder"
	"github.com/bkoseoglu/faturalog/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("faturalog")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "faturalog.db", "Database file path")
		storagePath = fs.StringLong("storage", "./bills", "Bill image storage directory")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var); without one the offline mock extractor is used")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.0-flash-lite", "Google Gemini model name")
		lang        = fs.StringLong("lang", "tr", "Notification language: 'tr' or 'en'")
		userID      = fs.StringLong("user", "local", "Account the bills belong to")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("FATURALOG"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize bill store
	slog.Info("Initializing bill database...")
	store, err := bill.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize bill database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize key-value storage for reminder settings
	kvStore, err := kv.NewBoltStore(strings.TrimSuffix(*dbPath, ".db") + "-settings.db")
	if err != nil {
		slog.Error("Failed to initialize settings storage", "error", err)
		os.Exit(1)
	}
	defer kvStore.Close()

	// Credential presence selects the extraction strategy once for this
	// deployment: Gemini vision when a key is configured, canned mock data
	// otherwise.
	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	var primary extraction.Extractor
	if apiKey != "" {
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		primary, err = extraction.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("No Gemini API key configured, using mock extractor")
		primary = extraction.NewMock()
	}
	engine := extraction.NewEngine(primary)
	defer engine.Close()

	// Initialize image storage
	slog.Info("Initializing image storage...")
	imageStore, err := bill.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize image storage", "error", err)
		os.Exit(1)
	}

	// Wire the reminder scheduler and bill service together
	facade := reminder.NewFacade(kvStore)
	notifier := reminder.NewTimerNotifier(nil)
	scheduler := reminder.NewScheduler(store, facade, notifier, *lang)
	billService := bill.NewService(store, engine, imageStore, scheduler)

	// Rebuild the reminder schedule on startup; pending timers do not
	// survive a restart
	if err := scheduler.RefreshAll(*userID); err != nil {
		slog.Error("Failed to refresh reminders on startup", "error", err)
	}

	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(billService, scheduler, facade, *userID, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
