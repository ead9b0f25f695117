package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers/openalex"
	"paper-atlas/services"
)

// Exit-Codes des Import-Kommandos: 0 = vollständig geladen und valide,
// 1 = teilweise geladen oder Validierung fehlgeschlagen, 2 = abgebrochen.
const (
	exitOK      = 0
	exitPartial = 1
	exitAborted = 2
)

func main() {
	filePath := flag.String("file", "", "Pfad zur JSON-Datei mit Works (Pflicht)")
	skipValidation := flag.Bool("skip-validation", false, "Integritäts-Validierung nach dem Import überspringen")
	flag.Parse()

	if *filePath == "" {
		flag.Usage()
		os.Exit(exitPartial)
	}

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Logger konnte nicht initialisiert werden: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	works, err := readWorks(*filePath)
	if err != nil {
		log.Fatalf("Fehler beim Lesen der Eingabedatei: %v", err)
	}
	log.Printf("%d Works aus %s gelesen", len(works), *filePath)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Fehler bei der Datenbankverbindung: %v", err)
	}
	if err := db.AutoMigrate(&models.Paper{}, &models.Author{}, &models.PaperAuthor{}, &models.ImportRun{}); err != nil {
		log.Fatalf("Fehler bei der Auto-Migration: %v", err)
	}

	// SIGINT/SIGTERM brechen den Lauf sauber ab; der ImportRun endet als ABORTED.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := services.NewUpsertEngine(db, logging)
	norm := &services.Normalizer{MinScore: cfg.RelevanceMinScore}
	importer := services.NewImporter(db, engine, norm, logging)

	report, err := importer.Run(ctx, works, "cli")
	if report != nil {
		fmt.Print(report.Summary())
	}
	if err != nil {
		log.Printf("Import abgebrochen: %v", err)
		os.Exit(exitAborted)
	}

	code := exitOK
	if report.Status == models.RunStatusPartial {
		code = exitPartial
	}

	if !*skipValidation {
		validator := services.NewValidator(db, logging, cfg.ValidationSampleSize, cfg.SuspiciousCitationThreshold)
		validation := validator.Run(ctx)
		fmt.Print(validation.Summary())
		if !validation.Passed() && code == exitOK {
			code = exitPartial
		}
	}

	os.Exit(code)
}

func readWorks(path string) ([]openalex.Work, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var works []openalex.Work
	if err := json.NewDecoder(f).Decode(&works); err != nil {
		return nil, err
	}
	return works, nil
}
