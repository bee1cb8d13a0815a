// Package main is the glyphocr CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/glyphocr/internal/bitmap"
	"github.com/hyperjump/glyphocr/internal/classify"
	"github.com/hyperjump/glyphocr/internal/cli"
	"github.com/hyperjump/glyphocr/internal/config"
	"github.com/hyperjump/glyphocr/internal/models"
	"github.com/hyperjump/glyphocr/internal/server"
	"github.com/hyperjump/glyphocr/internal/storage"
	"github.com/hyperjump/glyphocr/internal/synth"
	"github.com/hyperjump/glyphocr/internal/watcher"
	"github.com/hyperjump/glyphocr/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/glyphocr/config.yaml"

// imageExtensions are the files whose changes trigger a training set reload.
var imageExtensions = []string{".png", ".gif", ".bmp", ".tif", ".tiff"}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if present, and a missing default file yields the built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "classify":
		runClassify()
	case "generate":
		runGenerate()
	case "train":
		runTrain()
	case "server":
		runServer()
	case "history":
		runHistory()
	case "version", "--version", "-v":
		fmt.Printf("glyphocr version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// argsReorder moves every flag (with its value, for non-boolean flags of fs) ahead of the
// positional arguments, since flag.Parse stops at the first non-flag argument. Positionals
// keep their relative order and negative numbers stay positional. Everything after "--"
// is positional.
// "glyphocr classify train --invert test" then parses as "--invert train test".
func argsReorder(fs *flag.FlagSet, args []string) []string {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			flags = append(flags, a)
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if !isFlagArg(a) {
			positionals = append(positionals, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if takesValue(fs, name) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return append(flags, positionals...)
}

func isFlagArg(a string) bool {
	return len(a) > 1 && a[0] == '-' && (a[1] < '0' || a[1] > '9')
}

// takesValue reports whether name is a flag of fs that consumes the next argument.
func takesValue(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
		return false
	}
	return true
}

func mustLoadConfig(path string) *config.Config {
	cfg, _, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func mustCLILogger(debug bool) *zap.Logger {
	logger, err := utils.NewCLILogger(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func polarity(invert bool) bitmap.Polarity {
	if invert {
		return bitmap.PolarityInverted
	}
	return bitmap.PolarityNative
}

func newEngine(cfg *config.Config, invert bool, logger *zap.Logger) *classify.Engine {
	return classify.NewEngine(
		classify.WithManifestName(cfg.Classify.ManifestName),
		classify.WithPolarity(polarity(cfg.Classify.Invert || invert)),
		classify.WithLogger(logger),
	)
}

func runClassify() {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dbPath := fs.String("db", "", "record the run in this SQLite database (default from config storage.database_path)")
	outputFormat := fs.String("output", "", "output format: text or json (default from config, or text)")
	invert := fs.Bool("invert", false, "treat black pixels as set cells")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(fs, os.Args[2:]))

	if fs.NArg() != 2 {
		printUsage()
		os.Exit(1)
	}
	cfg := mustLoadConfig(*configPath)
	if *outputFormat == "" {
		*outputFormat = cfg.Classify.Output
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *dbPath == "" {
		*dbPath = cfg.Storage.DatabasePath
	}
	logger := mustCLILogger(cfg.Debug || *debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := newEngine(cfg, *invert, logger)
	if err := classifyAndReport(ctx, engine, fs.Arg(0), fs.Arg(1), *dbPath, format, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Classification failed: %v\n", err)
		os.Exit(1)
	}
}

// classifyAndReport runs one classification, records it when dbPath is set, and writes the report.
// A failed recording is logged and does not fail the run.
func classifyAndReport(ctx context.Context, engine *classify.Engine, trainPath, testDir, dbPath string,
	format cli.OutputFormat, w io.Writer, logger *zap.Logger) error {
	report, err := engine.Run(ctx, trainPath, testDir)
	if err != nil {
		return err
	}
	if dbPath != "" {
		if err := recordReport(ctx, dbPath, report); err != nil {
			logger.Warn("failed to record run", zap.String("db", dbPath), zap.Error(err))
		} else {
			logger.Debug("run recorded", zap.String("run_id", report.RunID))
		}
	}
	return cli.WriteReport(w, report, format)
}

func recordReport(ctx context.Context, dbPath string, report *models.Report) error {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveReport(ctx, report)
}

// parseGenerateArgs turns the eight generate positionals into synthesizer params.
func parseGenerateArgs(args []string) (synth.Params, error) {
	if len(args) != 8 {
		return synth.Params{}, fmt.Errorf("expected 8 arguments, got %d", len(args))
	}
	names := []string{"width", "height", "x", "y"}
	ints := make([]int, 4)
	for i, name := range names {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return synth.Params{}, fmt.Errorf("%s: %q is not an integer", name, args[i])
		}
		ints[i] = n
	}
	noise, err := strconv.Atoi(args[6])
	if err != nil {
		return synth.Params{}, fmt.Errorf("noise_level: %q is not an integer", args[6])
	}
	p := synth.Params{
		Width:      ints[0],
		Height:     ints[1],
		X:          ints[2],
		Y:          ints[3],
		FontFile:   args[4],
		Letter:     args[5],
		NoiseLevel: noise,
		OutputDir:  args[7],
	}
	return p, p.Validate()
}

func runGenerate() {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	seed := fs.Uint64("seed", 0, "noise seed (default from config; 0 seeds from the clock)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(fs, os.Args[2:]))

	p, err := parseGenerateArgs(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		printUsage()
		os.Exit(1)
	}
	cfg := mustLoadConfig(*configPath)
	logger := mustCLILogger(cfg.Debug || *debug)
	defer logger.Sync()

	opts := []synth.GeneratorOption{
		synth.WithManifestName(cfg.Classify.ManifestName),
		synth.WithLogger(logger),
	}
	if *seed == 0 {
		*seed = cfg.Generate.Seed
	}
	if *seed != 0 {
		opts = append(opts, synth.WithSeed(*seed))
	}
	path, err := synth.NewGenerator(opts...).Generate(p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generate failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%s)\n", path, p.Label())
}

func runTrain() {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	invert := fs.Bool("invert", false, "treat black pixels as set cells")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(fs, os.Args[2:]))

	if fs.NArg() != 2 {
		printUsage()
		os.Exit(1)
	}
	cfg := mustLoadConfig(*configPath)
	logger := mustCLILogger(cfg.Debug || *debug)
	defer logger.Sync()

	set, err := newEngine(cfg, *invert, logger).BuildTrainingSet(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Training failed: %v\n", err)
		os.Exit(1)
	}
	if err := set.Save(fs.Arg(1)); err != nil {
		fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d glyphs (%d dimensions, %s polarity) to %s\n", set.Len(), set.Dimensions(), set.Polarity(), fs.Arg(1))
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file events, reloads, requests)")
	invert := fs.Bool("invert", false, "treat black pixels as set cells")
	_ = fs.Parse(argsReorder(fs, os.Args[2:]))

	if fs.NArg() != 1 {
		printUsage()
		os.Exit(1)
	}
	trainPath := fs.Arg(0)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	var store storage.Storage
	if cfg.Storage.DatabasePath != "" {
		sqlStore, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			logger.Fatal("Failed to open run history", zap.Error(err))
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.NewServer(newEngine(cfg, *invert, logger), trainPath, store, &cfg.Server, logger)
	if err := srv.Reload(ctx); err != nil {
		logger.Fatal("Failed to load training set", zap.Error(err))
	}

	if info, err := os.Stat(trainPath); err == nil && info.IsDir() {
		watchOpts := []watcher.WatcherOption{
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS) * time.Millisecond),
			watcher.WithFilter(watcher.ExtensionFilter(imageExtensions, cfg.Classify.ManifestName)),
		}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.NewWatcher(trainPath, func() {
			// Reload logs its own failures and keeps the previous set.
			_ = srv.Reload(ctx)
		}, watchOpts...)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dbPath := fs.String("db", "", "SQLite database (default from config storage.database_path)")
	limit := fs.Int("limit", 20, "number of runs to list")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(fs, os.Args[2:]))

	if fs.NArg() > 1 {
		printUsage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *dbPath == "" {
		*dbPath = mustLoadConfig(*configPath).Storage.DatabasePath
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "No database configured; pass --db or set storage.database_path")
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := writeHistory(context.Background(), store, *dbPath, fs.Arg(0), *limit, format, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "History failed: %v\n", err)
		os.Exit(1)
	}
}

// writeHistory prints one stored run with its results when runID is set, otherwise the
// most recent runs followed by a storage summary.
func writeHistory(ctx context.Context, store storage.Storage, dbPath, runID string, limit int,
	format cli.OutputFormat, w io.Writer) error {
	if runID != "" {
		run, err := store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		results, err := store.GetResults(ctx, runID)
		if err != nil {
			return err
		}
		return cli.WriteReport(w, &models.Report{
			RunID:        run.RunID,
			TrainPath:    run.TrainPath,
			TestDir:      run.TestDir,
			TrainingSize: run.TrainingSize,
			Dimensions:   run.Dimensions,
			Results:      results,
			StartedAt:    run.StartedAt,
			ElapsedMS:    run.ElapsedMS,
		}, format)
	}

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if err := cli.WriteRuns(w, runs, format); err != nil {
		return err
	}
	if format != cli.OutputText {
		return nil
	}
	total, err := store.CountRuns(ctx)
	if err != nil {
		return err
	}
	results, err := store.CountResults(ctx)
	if err != nil {
		return err
	}
	size, err := storage.DatabaseSizeBytes(dbPath)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d runs, %d results, %s on disk\n", total, results, formatBytes(size))
	return err
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func printUsage() {
	fmt.Println(`glyphocr - Single-layer glyph recognizer

Usage:
  glyphocr classify [flags] <train_dir|train_set> <test_dir>   Classify every glyph of test_dir
  glyphocr generate [flags] <w> <h> <x> <y> <font_file> <letter> <noise_level> <output_dir>
                                                              Render a labeled glyph image
  glyphocr train [flags] <train_dir> <out_file>               Compile a training set file
  glyphocr server [flags] <train_dir|train_set>               Start the HTTP classification server
  glyphocr history [flags] [run_id]                           Show recorded runs
  glyphocr version                                            Show version
  glyphocr help                                               Show this help

Classify Flags:
  --config string    Config file path (default: /usr/local/etc/glyphocr/config.yaml)
  --db string        Record the run in this SQLite database
  --output string    Output format: text or json (default: text)
  --invert           Treat black pixels as set cells
  --debug            Enable debug logging

Generate Flags:
  --seed uint        Noise seed (0 seeds from the clock)

Train Flags:
  --invert           Treat black pixels as set cells

Server Flags:
  --config string    Config file path
  --debug            Enable debug logging (file events, reloads, requests)
  --invert           Treat black pixels as set cells

History Flags:
  --db string        SQLite database (default: storage.database_path)
  --limit int        Number of runs to list (default: 20)
  --output string    Output format: text or json (default: text)

Examples:
  glyphocr generate 24 24 2 0 DejaVuSans.ttf A 0 train
  glyphocr generate --seed 7 24 24 2 0 DejaVuSans.ttf A 10 test
  glyphocr classify train test
  glyphocr classify --db runs.db --output json train test
  glyphocr train train train.set
  glyphocr server train
  glyphocr history --db runs.db`)
}
