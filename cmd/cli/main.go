package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/GenreDNA/internal/config"
	"github.com/himanishpuri/GenreDNA/internal/eval"
	"github.com/himanishpuri/GenreDNA/internal/storage"
	"github.com/himanishpuri/GenreDNA/pkg/genreclass"
	"github.com/himanishpuri/GenreDNA/pkg/logger"
)

// Global flags
var (
	configPath string
	dbPath     string
	tempDir    string
)

// cfg is loaded once in main and shared by the command handlers.
var cfg *config.Root

func init() {
	// Global flags that can be used with any command
	flag.StringVar(&configPath, "config", "", "YAML configuration file (env: GENREDNA_CONFIG)")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite run database (env: GENREDNA_DB_PATH, default: genredna.sqlite3)")
	flag.StringVar(&tempDir, "temp", "", "Directory for temporary audio conversion files (env: GENREDNA_TEMP_DIR)")
	flag.Usage = printUsage
}

// createService creates a GenreDNA service from the loaded configuration
func createService(extra ...genreclass.Option) (genreclass.Service, error) {
	var archs []genreclass.Architecture
	for _, path := range cfg.Training.Architectures {
		a, err := genreclass.LoadArchitecture(path)
		if err != nil {
			return nil, err
		}
		archs = append(archs, a)
	}

	opts := []genreclass.Option{
		genreclass.WithDBPath(cfg.Paths.DB),
		genreclass.WithTempDir(cfg.Paths.Temp),
		genreclass.WithPlotDir(cfg.Paths.Plots),
		genreclass.WithFeatureParams(cfg.FeatureParams()),
		genreclass.WithFFmpegTimeout(cfg.FFmpegTimeout()),
		genreclass.WithSeed(cfg.Training.Seed),
		genreclass.WithStratify(cfg.Training.Stratify),
		genreclass.WithDropout(cfg.Training.Dropout),
		genreclass.WithBatchSize(cfg.Training.BatchSize),
		genreclass.WithEpochs(cfg.Training.Epochs),
		genreclass.WithArchitectures(archs...),
	}
	return genreclass.NewService(append(opts, extra...)...)
}

func main() {
	flag.Parse()

	// Initialize logger
	log := logger.GetLogger()

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		log.Errorf("Config load failed: %v", err)
		os.Exit(1)
	}
	if dbPath != "" {
		cfg.Paths.DB = dbPath
	}
	if tempDir != "" {
		cfg.Paths.Temp = tempDir
	}
	if lvl, ok := logger.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(lvl)
	}
	if cfg.Source != "" {
		log.Debugf("Loaded configuration from %s", cfg.Source)
	}

	// Print banner
	printBanner()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	command := args[0]
	log.Infof("Executing command: %s", command)

	switch command {
	case "extract":
		handleExtract(ctx, args[1:])
	case "train":
		handleTrain(ctx, args[1:])
	case "visualize":
		handleVisualize(ctx, args[1:])
	case "archs":
		handleArchs()
	case "runs":
		handleRuns(args[1:])
	case "show":
		handleShow(args[1:])
	case "delete":
		handleDelete(args[1:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
  ____                      ____  _   _    _
 / ___| ___ _ __  _ __ ___ |  _ \| \ | |  / \
| |  _ / _ \ '_ \| '__/ _ \| | | |  \| | / _ \
| |_| |  __/ | | | | |  __/| |_| | |\  |/ ___ \
 \____|\___|_| |_|_|  \___||____/|_| \_/_/   \_\

        Music Genre Classification Tool
`
	fmt.Println(banner)
}

// splitArgs separates a leading positional argument from the flags that follow.
func splitArgs(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

// openServices are closed by closeServices; os.Exit skips deferred calls,
// so every exit path goes through terminate.
var openServices []genreclass.Service

var exit = os.Exit

func closeServices() {
	for i := len(openServices) - 1; i >= 0; i-- {
		if err := openServices[i].Close(); err != nil {
			logger.GetLogger().Warnf("Closing service: %v", err)
		}
	}
	openServices = nil
}

// terminate closes any open service and exits with code.
func terminate(code int) {
	closeServices()
	exit(code)
}

// fail prints a status line, logs the error and exits.
func fail(status string, err error) {
	fmt.Printf("❌ %s: %v\n", status, err)
	logger.GetLogger().Errorf("%s: %v", status, err)
	terminate(1)
}

func mustService(extra ...genreclass.Option) genreclass.Service {
	fmt.Println("🔧 Initializing service...")
	svc, err := createService(extra...)
	if err != nil {
		fail("Failed to create service", err)
		return nil
	}
	openServices = append(openServices, svc)
	return svc
}

func handleExtract(ctx context.Context, args []string) {
	root, flagArgs := splitArgs(args)

	extractCmd := flag.NewFlagSet("extract", flag.ExitOnError)
	out := extractCmd.String("out", cfg.Paths.Dataset, "Dataset JSON to write")
	segments := extractCmd.Int("segments", cfg.Features.NumSegments, "Segments per track")
	mfcc := extractCmd.Int("mfcc", cfg.Features.NumMFCC, "MFCC coefficients per frame")
	sampleRate := extractCmd.Int("sr", cfg.Audio.SampleRate, "Sample rate audio is decoded at")
	extractCmd.Parse(flagArgs)

	if root == "" {
		fmt.Println("Error: dataset root directory required")
		fmt.Println("Usage: genredna extract <root> [--out data.json] [--segments 5] [--mfcc 13] [--sr 22050]")
		terminate(1)
	}

	params := cfg.FeatureParams()
	params.NumSegments = *segments
	params.NumMFCC = *mfcc

	svc := mustService(genreclass.WithFeatureParams(params), genreclass.WithSampleRate(*sampleRate))
	defer closeServices()

	fmt.Printf("🎵 Extracting MFCCs from %s...\n", root)
	report, err := svc.Extract(ctx, root, *out)
	if err != nil {
		fail("Extraction failed", err)
	}

	files, kept, dropped := report.Stats.Totals()
	fmt.Printf("\n✅ Wrote %s (%s)\n", report.Output, report.Size())
	fmt.Printf("   Genres:   %d\n", len(report.Genres))
	fmt.Printf("   Files:    %d\n", files)
	fmt.Printf("   Segments: %d kept, %d dropped\n", kept, dropped)
	fmt.Printf("   Took:     %s\n\n", report.Stats.Duration.Round(time.Millisecond))
	for _, g := range report.Stats.Genres {
		fmt.Printf("   %-12s %4d files %6d segments\n", g.Genre, g.Files, g.Segments)
	}
}

func handleTrain(ctx context.Context, args []string) {
	log := logger.GetLogger()

	trainCmd := flag.NewFlagSet("train", flag.ExitOnError)
	data := trainCmd.String("data", cfg.Paths.Dataset, "Dataset JSON to train on")
	archList := trainCmd.String("arch", "mlp", "Comma-separated architectures, or \"all\"")
	epochs := trainCmd.Int("epochs", cfg.Training.Epochs, "Override epochs (0 keeps the architecture's)")
	seed := trainCmd.Int64("seed", cfg.Training.Seed, "Random seed (0 picks one)")
	dropout := trainCmd.Float64("dropout", cfg.Training.Dropout, "Dropout rate")
	stratify := trainCmd.Bool("stratify", cfg.Training.Stratify, "Keep class proportions in every split")
	plots := trainCmd.String("plots", cfg.Paths.Plots, "Directory for plots (empty disables them)")
	trainCmd.Parse(args)

	svc := mustService(
		genreclass.WithEpochs(*epochs),
		genreclass.WithSeed(*seed),
		genreclass.WithDropout(*dropout),
		genreclass.WithStratify(*stratify),
		genreclass.WithPlotDir(*plots),
	)
	defer closeServices()

	var names []string
	if *archList == "all" {
		for _, a := range svc.Architectures() {
			names = append(names, a.Name)
		}
	} else {
		for _, n := range strings.Split(*archList, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	for _, name := range names {
		fmt.Printf("\n🧠 Training %s on %s...\n", name, *data)
		report, err := svc.Train(ctx, *data, name)
		if errors.Is(err, genreclass.ErrUnknownArchitecture) {
			fmt.Printf("❌ Unknown architecture %q (see: genredna archs)\n", name)
			log.Errorf("Train failed: %v", err)
			terminate(1)
		}
		if err != nil {
			fail("Training failed", err)
		}
		printReport(report)
	}
}

func printReport(r *genreclass.Report) {
	fmt.Printf("\n✅ Run %s (%s)\n", r.RunID, r.Architecture)
	fmt.Printf("   Seed:          %d\n", r.Seed)
	fmt.Printf("   Parameters:    %s\n", humanize.Comma(int64(r.ParamCount)))
	fmt.Printf("   Split:         %d train / %d validation / %d test\n", r.TrainSize, r.ValSize, r.TestSize)
	fmt.Printf("   Test loss:     %.4f\n", r.TestLoss)
	fmt.Printf("   Test accuracy: %.2f%%\n", 100*r.TestAccuracy)
	fmt.Printf("   Correct:       %d of %d\n", r.Correct, r.TestSize)
	fmt.Printf("   Took:          %s\n", r.Duration.Round(time.Millisecond))
	for _, p := range r.Plots {
		fmt.Printf("   Plot:          %s\n", p)
	}
	fmt.Printf("\n%s\n", r.Confusion)
}

func handleVisualize(ctx context.Context, args []string) {
	root, flagArgs := splitArgs(args)

	visCmd := flag.NewFlagSet("visualize", flag.ExitOnError)
	out := visCmd.String("out", cfg.Paths.Plots, "Directory for the images")
	visCmd.Parse(flagArgs)

	if root == "" {
		fmt.Println("Usage: genredna visualize <root> [--out plots]")
		terminate(1)
	}

	svc := mustService()
	defer closeServices()

	written, err := svc.Visualize(ctx, root, *out)
	if err != nil {
		fail("Visualization failed", err)
	}
	fmt.Printf("\n🖼  Wrote %d image(s):\n", len(written))
	for _, p := range written {
		fmt.Printf("   %s\n", p)
	}
}

func handleArchs() {
	svc := mustService()
	defer closeServices()

	counts, err := svc.RunCounts()
	if err != nil {
		fail("Failed to count runs", err)
	}

	fmt.Printf("\n📐 %d architecture(s):\n\n", len(svc.Architectures()))
	for _, a := range svc.Architectures() {
		fmt.Printf("%-14s %s\n", a.Name, a.Description)
		split := fmt.Sprintf("flat %.2f", a.TestFraction)
		if a.Split == genreclass.SplitNested {
			split = fmt.Sprintf("nested %.2f/%.2f", a.TestFraction, a.ValFraction)
		}
		fmt.Printf("   input %s | split %s | lr %g | %d epochs | %d layers | %d run(s)\n\n",
			a.Input, split, a.LearningRate, a.Epochs, len(a.Layers)+1, counts[a.Name])
	}
}

func handleRuns(args []string) {
	log := logger.GetLogger()

	runsCmd := flag.NewFlagSet("runs", flag.ExitOnError)
	arch := runsCmd.String("arch", "", "Only runs of this architecture")
	limit := runsCmd.Int("limit", 20, "Maximum runs to show (0 for all)")
	runsCmd.Parse(args)

	svc := mustService()
	defer closeServices()

	runs, err := svc.ListRuns(*arch, *limit)
	if err != nil {
		fail("Failed to list runs", err)
	}

	if len(runs) == 0 {
		fmt.Println("\n📭 No runs recorded")
		log.Info("No runs in database")
		return
	}

	fmt.Printf("\n📚 Found %d run(s):\n\n", len(runs))
	for i, r := range runs {
		fmt.Printf("%d. %s  %-13s acc %.2f%%  loss %.4f  (%s)\n",
			i+1, r.ID, r.Architecture, 100*r.TestAccuracy, r.TestLoss, humanize.Time(r.CreatedAt))
	}
	log.Infof("Listed %d runs", len(runs))
}

func handleShow(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: genredna show <run_id>")
		terminate(1)
	}

	svc := mustService()
	defer closeServices()

	run, err := svc.GetRun(args[0])
	if errors.Is(err, storage.ErrRunNotFound) {
		fmt.Printf("❌ Run not found (ID: %s)\n", args[0])
		logger.GetLogger().Warnf("Run %s not found", args[0])
		terminate(1)
	}
	if err != nil {
		fail("Failed to load run", err)
	}

	fmt.Printf("\nRun %s\n", run.ID)
	fmt.Printf("   Architecture:  %s\n", run.Architecture)
	fmt.Printf("   Dataset:       %s\n", run.DatasetPath)
	fmt.Printf("   Created:       %s (%s)\n", run.CreatedAt.Format(time.DateTime), humanize.Time(run.CreatedAt))
	fmt.Printf("   Seed:          %d\n", run.Seed)
	fmt.Printf("   Hyperparams:   lr %g, dropout %.2f, batch %d, %d epochs\n", run.LearningRate, run.Dropout, run.BatchSize, run.Epochs)
	fmt.Printf("   Split:         %d train / %d validation / %d test\n", run.TrainSize, run.ValSize, run.TestSize)
	fmt.Printf("   Test loss:     %.4f\n", run.TestLoss)
	fmt.Printf("   Test accuracy: %.2f%% (%d correct)\n", 100*run.TestAccuracy, run.Correct)
	fmt.Printf("   Took:          %s\n", (time.Duration(run.DurationMs) * time.Millisecond).String())

	fmt.Printf("\n%5s %10s %10s %10s %10s\n", "epoch", "loss", "accuracy", "val_loss", "val_acc")
	for _, e := range run.History {
		fmt.Printf("%5d %10.4f %10.4f %10.4f %10.4f\n", e.Epoch, e.Loss, e.Accuracy, e.ValLoss, e.ValAccuracy)
	}

	conf := &eval.Confusion{Labels: run.Genres, Counts: run.Confusion}
	fmt.Printf("\n%s\n", conf)
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: genredna delete <run_id>")
		terminate(1)
	}
	id := args[0]

	svc := mustService()
	defer closeServices()

	// Get run info before deletion
	run, err := svc.GetRun(id)
	if err != nil {
		fmt.Printf("❌ Run not found (ID: %s)\n", id)
		log.Warnf("Run %s not found: %v", id, err)
		terminate(1)
	}

	if err := svc.DeleteRun(id); err != nil {
		fail("Failed to delete run", err)
	}

	fmt.Printf("\n✅ Successfully deleted run:\n")
	fmt.Printf("   ID:           %s\n", run.ID)
	fmt.Printf("   Architecture: %s\n", run.Architecture)
	fmt.Printf("   Accuracy:     %.2f%%\n", 100*run.TestAccuracy)
	log.Infof("Deleted run ID=%s (%s)", run.ID, run.Architecture)
}

func printUsage() {
	fmt.Println("GenreDNA - Music Genre Classification CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --config <path>    YAML configuration (env: GENREDNA_CONFIG, default: genredna.yaml if present)")
	fmt.Println("  --db <path>        Path to SQLite run database (env: GENREDNA_DB_PATH, default: genredna.sqlite3)")
	fmt.Println("  --temp <dir>       Temporary directory for audio conversion (env: GENREDNA_TEMP_DIR)")
	fmt.Println("\nUsage:")
	fmt.Println("  genredna [global-options] extract <root> [--out data.json] [--segments 5] [--mfcc 13] [--sr 22050]")
	fmt.Println("  genredna [global-options] train [--data data.json] [--arch mlp,cnn|all] [--epochs N] [--seed N] [--stratify]")
	fmt.Println("  genredna [global-options] visualize <root> [--out plots]")
	fmt.Println("  genredna [global-options] archs")
	fmt.Println("  genredna [global-options] runs [--arch name] [--limit 20]")
	fmt.Println("  genredna [global-options] show <run_id>")
	fmt.Println("  genredna [global-options] delete <run_id>")
	fmt.Println("\nExamples:")
	fmt.Println("  # Build the dataset from a GTZAN-style tree")
	fmt.Println("  genredna extract ./genres_original --out data_10.json --segments 10")
	fmt.Println()
	fmt.Println("  # Compare the convolutional and recurrent models")
	fmt.Println("  genredna train --data data_10.json --arch cnn,lstm --seed 42")
	fmt.Println()
	fmt.Println("  # Inspect the best runs")
	fmt.Println("  genredna runs --arch cnn")
}
