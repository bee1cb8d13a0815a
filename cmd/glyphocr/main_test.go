package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/glyphocr/internal/bitmap"
	"github.com/hyperjump/glyphocr/internal/classify"
	"github.com/hyperjump/glyphocr/internal/cli"
	"github.com/hyperjump/glyphocr/internal/manifest"
	"github.com/hyperjump/glyphocr/internal/storage"
	"github.com/hyperjump/glyphocr/internal/synth"
	"go.uber.org/zap"
)

func testFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("invert", false, "")
	fs.String("db", "", "")
	fs.Uint64("seed", 0, "")
	return fs
}

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after positionals are moved first",
			args:     []string{"train", "test", "--invert"},
			expected: []string{"--invert", "train", "test"},
		},
		{
			name:     "flag between positionals keeps their order",
			args:     []string{"train", "--invert", "test"},
			expected: []string{"--invert", "train", "test"},
		},
		{
			name:     "valued flag between positionals",
			args:     []string{"train", "--db", "runs.db", "test"},
			expected: []string{"--db", "runs.db", "train", "test"},
		},
		{
			name:     "flag with equals value",
			args:     []string{"train", "--db=runs.db", "test"},
			expected: []string{"--db=runs.db", "train", "test"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"--db", "runs.db", "train", "test"},
			expected: []string{"--db", "runs.db", "train", "test"},
		},
		{
			name:     "positionals only returns unchanged",
			args:     []string{"train", "test"},
			expected: []string{"train", "test"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "negative numbers are not flags",
			args:     []string{"24", "24", "-3", "0"},
			expected: []string{"24", "24", "-3", "0"},
		},
		{
			name:     "double dash ends flags",
			args:     []string{"train", "--", "--invert"},
			expected: []string{"--", "train", "--invert"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(testFlagSet(), tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestArgsReorder_generatePositionalsSurviveParse(t *testing.T) {
	fs := testFlagSet()
	args := []string{"24", "20", "2", "1", "font.ttf", "--seed", "7", "A", "15", "out"}
	if err := fs.Parse(argsReorder(fs, args)); err != nil {
		t.Fatal(err)
	}
	if got := fs.Lookup("seed").Value.String(); got != "7" {
		t.Errorf("seed = %s, want 7", got)
	}
	p, err := parseGenerateArgs(fs.Args())
	if err != nil {
		t.Fatal(err)
	}
	if p.Width != 24 || p.Letter != "A" || p.NoiseLevel != 15 || p.OutputDir != "out" {
		t.Errorf("parseGenerateArgs() = %+v", p)
	}
}

func TestArgsReorder_classifyKeepsTrainThenTest(t *testing.T) {
	fs := testFlagSet()
	if err := fs.Parse(argsReorder(fs, []string{"train", "--invert", "test"})); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fs.Args(), []string{"train", "test"}) {
		t.Errorf("positionals = %v, want [train test]", fs.Args())
	}
	if fs.Lookup("invert").Value.String() != "true" {
		t.Error("invert flag not parsed")
	}
}

func TestParseGenerateArgs(t *testing.T) {
	p, err := parseGenerateArgs([]string{"24", "20", "2", "1", "font.ttf", "A", "15", "out"})
	if err != nil {
		t.Fatal(err)
	}
	want := synth.Params{Width: 24, Height: 20, X: 2, Y: 1, FontFile: "font.ttf", Letter: "A", NoiseLevel: 15, OutputDir: "out"}
	if p != want {
		t.Errorf("parseGenerateArgs() = %+v, want %+v", p, want)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"too few", []string{"24", "24"}},
		{"bad width", []string{"w", "24", "0", "0", "f.ttf", "A", "0", "out"}},
		{"bad noise", []string{"24", "24", "0", "0", "f.ttf", "A", "lots", "out"}},
		{"noise out of range", []string{"24", "24", "0", "0", "f.ttf", "A", "150", "out"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseGenerateArgs(tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
classify:
  manifest_name: "labels.txt"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug || cfg.Classify.ManifestName != "labels.txt" {
		t.Errorf("unexpected config from cwd config.yaml: %+v", cfg)
	}
}

func TestLoadConfig_missingDefaultUsesBuiltins(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("default config exists on this machine")
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" || cfg.Classify.ManifestName != manifest.DefaultName {
		t.Errorf("resolved = %q, cfg = %+v", resolved, cfg.Classify)
	}
}

func TestLoadConfig_explicitPathMustExist(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func writeGlyph(t *testing.T, dir, file, label string, rows [][]uint8) {
	t.Helper()
	grid, err := bitmap.FromRows(rows)
	if err != nil {
		t.Fatal(err)
	}
	if err := bitmap.Save(filepath.Join(dir, file), grid, bitmap.PolarityNative); err != nil {
		t.Fatal(err)
	}
	if err := manifest.Append(dir, "", manifest.Entry{Filename: file, Label: label}); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyAndReport_recordsRun(t *testing.T) {
	root := t.TempDir()
	trainDir := filepath.Join(root, "train")
	testDir := filepath.Join(root, "test")
	for _, d := range []string{trainDir, testDir} {
		if err := os.Mkdir(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	square := [][]uint8{{1, 1}, {1, 1}}
	bar := [][]uint8{{1, 1}, {0, 0}}
	writeGlyph(t, trainDir, "sq.png", "square", square)
	writeGlyph(t, trainDir, "bar.png", "bar", bar)
	writeGlyph(t, testDir, "q1.png", "bar", bar)
	writeGlyph(t, testDir, "q2.png", "square", square)

	dbPath := filepath.Join(root, "runs.db")
	var out bytes.Buffer
	ctx := context.Background()
	err := classifyAndReport(ctx, classify.NewEngine(), trainDir, testDir, dbPath, cli.OutputText, &out, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	want := "bar --> bar, confidence: 1.000\nsquare --> square, confidence: 1.000\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ResultCount != 2 {
		t.Fatalf("recorded runs: %+v", runs)
	}

	var hist bytes.Buffer
	if err := writeHistory(ctx, store, dbPath, runs[0].RunID, 0, cli.OutputText, &hist); err != nil {
		t.Fatal(err)
	}
	if hist.String() != want {
		t.Errorf("history output = %q, want %q", hist.String(), want)
	}

	hist.Reset()
	if err := writeHistory(ctx, store, dbPath, "", 10, cli.OutputText, &hist); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(hist.String(), runs[0].RunID) || !strings.Contains(hist.String(), "1 runs, 2 results") {
		t.Errorf("history listing = %q", hist.String())
	}

	err = writeHistory(ctx, store, dbPath, "missing", 0, cli.OutputText, &hist)
	if !errors.Is(err, storage.ErrRunNotFound) {
		t.Errorf("writeHistory(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestClassifyAndReport_failureWritesNothing(t *testing.T) {
	var out bytes.Buffer
	err := classifyAndReport(context.Background(), classify.NewEngine(), t.TempDir(), t.TempDir(), "",
		cli.OutputText, &out, zap.NewNop())
	if !errors.Is(err, manifest.ErrManifestNotFound) {
		t.Errorf("error = %v, want ErrManifestNotFound", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
