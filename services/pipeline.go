package services

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paper-atlas/config"
	"paper-atlas/providers"
	"paper-atlas/providers/openalex"
	"paper-atlas/storage"
)

// PipelineService orchestriert den kompletten Durchlauf: Abruf bei den
// Providern, Relevanz-Filter, Roh-Archiv, Import und Validierung.
type PipelineService struct {
	Config    *config.Config
	DB        *gorm.DB
	S3Client  *s3.Client
	Logger    *zap.Logger
	Providers []providers.Provider
	Importer  *Importer
	Validator *Validator
}

// NewPipelineService erstellt eine neue Instanz des PipelineService.
func NewPipelineService(cfg *config.Config, db *gorm.DB, s3Client *s3.Client, logger *zap.Logger, provs []providers.Provider) *PipelineService {
	engine := NewUpsertEngine(db, logger)
	norm := &Normalizer{MinScore: cfg.RelevanceMinScore}
	return &PipelineService{
		Config:    cfg,
		DB:        db,
		S3Client:  s3Client,
		Logger:    logger,
		Providers: provs,
		Importer:  NewImporter(db, engine, norm, logger),
		Validator: NewValidator(db, logger, cfg.ValidationSampleSize, cfg.SuspiciousCitationThreshold),
	}
}

// PipelineResult bündelt Import-Report und Validierungsergebnis eines Laufs.
type PipelineResult struct {
	Fetched    int               `json:"fetched"`
	Relevant   int               `json:"relevant"`
	ArchiveKey string            `json:"archive_key,omitempty"`
	Import     *Report           `json:"import,omitempty"`
	Validation *ValidationReport `json:"validation,omitempty"`
}

// Run führt einen kompletten Pipeline-Durchlauf aus.
func (p *PipelineService) Run(ctx context.Context, trigger string) (*PipelineResult, error) {
	result := &PipelineResult{}

	// Stufe 1: Abruf bei allen Providern, de-dupliziert über die Work-ID.
	seen := map[string]bool{}
	var works []openalex.Work
	for _, provider := range p.Providers {
		fetched, err := provider.FetchRecent(ctx, p.Config.FetchDaysBack)
		if err != nil {
			p.Logger.Error("Provider-Abruf fehlgeschlagen",
				zap.String("provider", provider.Name()), zap.Error(err))
			continue
		}
		for _, w := range fetched {
			if w.ID != "" && !seen[w.ID] {
				seen[w.ID] = true
				works = append(works, w)
			}
		}
	}
	result.Fetched = len(works)

	// Stufe 2: Relevanz-Filter.
	relevant := works[:0]
	for i := range works {
		if IsRelevant(&works[i], p.Config.RelevanceMinScore) {
			relevant = append(relevant, works[i])
		}
	}
	result.Relevant = len(relevant)
	p.Logger.Info("Relevanz-Filter angewendet",
		zap.Int("fetched", result.Fetched), zap.Int("relevant", result.Relevant))

	// Stufe 3: Roh-Batch archivieren, falls konfiguriert. Ein Fehler hier
	// bricht den Import nicht ab.
	if p.Config.ArchiveEnabled() && p.S3Client != nil && len(relevant) > 0 {
		key, err := storage.UploadRawBatch(ctx, p.S3Client, p.Config.ArchiveS3Bucket, relevant)
		if err != nil {
			p.Logger.Error("Archivierung des Roh-Batches fehlgeschlagen", zap.Error(err))
		} else {
			result.ArchiveKey = key
		}
	}

	// Stufe 4: Import.
	report, err := p.Importer.Run(ctx, relevant, trigger)
	result.Import = report
	if err != nil {
		return result, err
	}

	// Stufe 5: Validierung.
	if p.Config.ValidateAfterImport {
		result.Validation = p.Validator.Run(ctx)
	}

	return result, nil
}
