// backend/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/shokudo/rbetl/backend/config"
	"github.com/shokudo/rbetl/backend/database"
	"github.com/shokudo/rbetl/backend/handlers"
	"github.com/shokudo/rbetl/backend/normalizer"
	"github.com/shokudo/rbetl/backend/objectstore"
	"github.com/shokudo/rbetl/backend/scraper"
	"github.com/shokudo/rbetl/backend/services"
)

func main() {
	log.Println("Starting Restaurant Board ETL backend...")

	// Local .env files override nothing in production; they only fill gaps.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	log.Printf("Configuration loaded. Server port: %s, DB name: %s", cfg.Server.Port, cfg.Database.DBName)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	var objects objectstore.Store
	if cfg.GCS.Bucket != "" {
		gcs, err := objectstore.NewGCS(ctx, cfg.GCS.Bucket)
		if err != nil {
			log.Fatalf("Error creating GCS object store: %v", err)
		}
		defer gcs.Close()
		objects = gcs
		log.Printf("Object store: gs://%s", cfg.GCS.Bucket)
	} else {
		local, err := objectstore.NewLocal(cfg.GCS.LocalDir)
		if err != nil {
			log.Fatalf("Error creating local object store: %v", err)
		}
		objects = local
		log.Printf("Object store: local directory %s", cfg.GCS.LocalDir)
	}

	var directory services.StoreDirectory
	if cfg.Sheets.SpreadsheetID != "" {
		directory, err = services.NewSheetsDirectory(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range)
		if err != nil {
			log.Fatalf("Error creating store master sheet client: %v", err)
		}
		log.Printf("Store master: sheet %s range %s", cfg.Sheets.SpreadsheetID, cfg.Sheets.Range)
	} else {
		directory = services.NewCSVDirectory(cfg.Sheets.StoresCSV)
		log.Printf("Store master: local file %s", cfg.Sheets.StoresCSV)
	}

	norm := normalizer.New(normalizer.Config{
		Vendor:      cfg.ETL.Vendor,
		KeyStrategy: normalizer.KeyStrategy(cfg.ETL.KeyStrategy),
	})
	extractor := services.NewBrowserExtractor(scraper.Config{
		BaseURL:         cfg.Scraper.BaseURL,
		LoginURL:        cfg.Scraper.LoginURL,
		Headless:        cfg.Scraper.Headless,
		StepTimeout:     cfg.Scraper.StepTimeout(),
		DownloadTimeout: cfg.Scraper.DownloadTimeout(),
		DownloadDir:     cfg.Scraper.DownloadDir,
	})

	staging := database.NewStagingStore(db)
	production := database.NewProductionStore(db)
	runStore := database.NewRunStore(db)

	etl := services.NewETLService(services.ETLConfig{
		Vendor:   cfg.ETL.Vendor,
		DaysBack: cfg.ETL.DaysBack,
		Retry: scraper.RetryConfig{
			MaxAttempts: cfg.ETL.MaxRetries,
			BaseDelay:   cfg.ETL.RetryDelay(),
		},
		StageTTL:    time.Duration(cfg.ETL.StageTTLDays) * 24 * time.Hour,
		LandingTTL:  time.Duration(cfg.GCS.TTLDays) * 24 * time.Hour,
		LandingRoot: cfg.GCS.PathPrefix,
	}, directory, extractor, norm, objects, staging, production, runStore)
	backfill := services.NewBackfillService(cfg.ETL.Vendor, objects, staging, production)

	etlHandler := handlers.NewETLHandler(etl, backfill, production, runStore)
	storeHandler := handlers.NewStoreHandler(directory)

	http.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(); err != nil {
			http.Error(w, `{"status": "error", "message": "database connection error"}`, http.StatusInternalServerError)
			log.Printf("Health check failed: DB ping error: %v", err)
			return
		}
		fmt.Fprintln(w, `{"status": "ok", "message": "restaurant board etl backend is healthy"}`)
	})
	http.HandleFunc("/api/etl/run", etlHandler.TriggerRun)
	http.HandleFunc("/api/admin/backfill", etlHandler.TriggerBackfill)
	http.HandleFunc("/api/status", etlHandler.Status)
	http.HandleFunc("/api/stores", storeHandler.ListStores)

	serverAddr := ":" + cfg.Server.Port
	log.Printf("Server starting on http://localhost%s\n", serverAddr)
	if err := http.ListenAndServe(serverAddr, nil); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
}
