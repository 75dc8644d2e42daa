package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/smart-budget/internal/categorize"
	"github.com/dvloznov/smart-budget/internal/classifier"
	"github.com/dvloznov/smart-budget/internal/config"
	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/dvloznov/smart-budget/internal/logger"
	"github.com/dvloznov/smart-budget/internal/override"
	"github.com/dvloznov/smart-budget/internal/store/sqlite"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	switch os.Args[1] {
	case "predict":
		runPredict(log, cfg)
	case "add":
		runAdd(log, cfg)
	case "list":
		runList(log, cfg)
	case "upload-model":
		runUploadModel(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Smart Budget CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  predict       Categorize a transaction without storing it")
	fmt.Println("  add           Categorize and store a transaction")
	fmt.Println("  list          List stored transactions, newest first")
	fmt.Println("  upload-model  Upload a model artifact to GCS")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// recordFlags registers the transaction fields shared by predict and add.
func recordFlags(fs *flag.FlagSet) func() domain.TransactionRecord {
	description := fs.String("description", "", "Transaction description")
	merchant := fs.String("merchant", "", "Merchant name")
	amount := fs.Float64("amount", 0, "Transaction amount")
	paymentMethod := fs.String("payment-method", "", "Payment method (optional)")

	return func() domain.TransactionRecord {
		return domain.TransactionRecord{
			Description:   *description,
			Merchant:      *merchant,
			Amount:        *amount,
			PaymentMethod: *paymentMethod,
		}
	}
}

// newService wires the core for one CLI invocation. store may be nil for
// commands that never persist.
func newService(ctx context.Context, log zerolog.Logger, cfg config.Config, store categorize.TransactionStore) *categorize.Service {
	rules, err := override.LoadRules(cfg.RulesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load override rules")
	}

	predictor, err := categorize.LoadPredictor(ctx, cfg, rules)
	if err != nil {
		log.Fatal().Err(err).Str("model_uri", cfg.ModelURI).Msg("Failed to load classifier")
	}

	return categorize.NewService(predictor, override.NewResolver(rules), store)
}

func runPredict(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	record := recordFlags(fs)
	modelURI := fs.String("model", cfg.ModelURI, "Model artifact path or gs:// URI")
	fs.Parse(os.Args[2:])
	cfg.ModelURI = *modelURI

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc := newService(ctx, log, cfg, nil)

	category, err := svc.Categorize(ctx, record())
	if err != nil {
		log.Fatal().Err(err).Msg("Prediction failed")
	}

	fmt.Println(category)
}

func runAdd(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	record := recordFlags(fs)
	modelURI := fs.String("model", cfg.ModelURI, "Model artifact path or gs:// URI")
	dbPath := fs.String("db", cfg.DBPath, "SQLite database path")
	fs.Parse(os.Args[2:])
	cfg.ModelURI = *modelURI

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", *dbPath).Msg("Failed to open transaction store")
	}
	defer store.Close()

	svc := newService(ctx, log, cfg, store)

	stored, err := svc.RecordTransaction(ctx, record())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to record transaction")
	}

	printTransaction(stored)
}

func runList(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "SQLite database path")
	limit := fs.Int("limit", domain.DefaultListLimit, "Maximum rows to show")
	offset := fs.Int("offset", domain.DefaultListOffset, "Rows to skip")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	store, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", *dbPath).Msg("Failed to open transaction store")
	}
	defer store.Close()

	transactions, err := store.List(ctx, *limit, *offset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(transactions))
	for _, tx := range transactions {
		printTransaction(tx)
	}
	fmt.Println()
}

func runUploadModel(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload-model", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local model artifact")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload-model -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}
	gcsURI := fmt.Sprintf("gs://%s/%s", *bucketName, *objectName)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("file", *filePath).
		Str("gcs_uri", gcsURI).
		Msg("Uploading model artifact")

	if err := classifier.UploadArtifact(ctx, *filePath, gcsURI); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, gcsURI)
	fmt.Printf("Set MODEL_URI=%s to serve it.\n", gcsURI)
}

func printTransaction(tx domain.StoredTransaction) {
	fmt.Printf("\n#%d %s\n", tx.ID, tx.Description)
	fmt.Printf("   Merchant: %s\n", tx.Merchant)
	fmt.Printf("   Amount:   %.2f\n", tx.Amount)
	if tx.PaymentMethod != "" {
		fmt.Printf("   Payment:  %s\n", tx.PaymentMethod)
	}
	fmt.Printf("   Category: %s\n", tx.Category)
	fmt.Printf("   Created:  %s\n", tx.CreatedAt.Format(time.RFC3339))
}
