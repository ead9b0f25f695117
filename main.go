package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
	"paper-atlas/providers/openalex"
	"paper-atlas/services"
	"paper-atlas/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	papersUpsertedCounter *prometheus.CounterVec
	recordsFailedCounter  prometheus.Counter
	importRunsCounter     *prometheus.CounterVec
)

func init() {
	papersUpsertedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papers_upserted_total",
			Help: "Total number of papers written to the database, by operation.",
		},
		[]string{"operation"},
	)
	recordsFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "import_records_failed_total",
			Help: "Total number of records skipped during import.",
		},
	)
	importRunsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_runs_total",
			Help: "Total number of import runs, by final status.",
		},
		[]string{"status"},
	)
	prometheus.MustRegister(papersUpsertedCounter, recordsFailedCounter, importRunsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Paper{}, &models.Author{}, &models.PaperAuthor{}, &models.ImportRun{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Providers
	activeProviders := []providers.Provider{openalex.NewFetcher(cfg, logging)}

	// Setup S3 (optional)
	var pipeline *services.PipelineService
	if cfg.ArchiveEnabled() {
		client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		pipeline = services.NewPipelineService(cfg, db, client, logging, activeProviders)
	} else {
		logging.Info("Raw batch archive disabled, no S3 configuration found.")
		pipeline = services.NewPipelineService(cfg, db, nil, logging, activeProviders)
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupPaperRoutes(router, db, logging)
	setupAuthorRoutes(router, db, logging)
	setupDashboardRoutes(router, db, logging)
	setupImportRoutes(router, pipeline, db, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled pipeline job...")
		result, err := pipeline.Run(context.Background(), "cron")
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed",
				zap.Int("fetched", result.Fetched),
				zap.Int("relevant", result.Relevant))
		}
		recordPipelineMetrics(result)
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// recordPipelineMetrics schreibt das Ergebnis eines Laufs in die Prometheus-Zähler.
func recordPipelineMetrics(result *services.PipelineResult) {
	if result == nil || result.Import == nil {
		return
	}
	report := result.Import
	papersUpsertedCounter.WithLabelValues("inserted").Add(float64(report.Result.Papers.Inserted))
	papersUpsertedCounter.WithLabelValues("updated").Add(float64(report.Result.Papers.Updated))
	recordsFailedCounter.Add(float64(report.Failed))
	importRunsCounter.WithLabelValues(report.Status).Inc()
}

func setupPaperRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/papers")

	rg.GET("/", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		var papers []models.Paper
		if err := db.Order("publication_date DESC NULLS LAST").Limit(limit).Find(&papers).Error; err != nil {
			log.Error("Database query for papers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, papers)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")

		var paper models.Paper
		if err := db.Where("paper_id = ?", id).First(&paper).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "paper not found"})
				return
			}
			log.Error("DB error fetching paper", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		var authorships []models.PaperAuthor
		if err := db.Where("paper_id = ?", id).Order("author_sequence ASC").Find(&authorships).Error; err != nil {
			log.Error("DB error fetching authorships", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"paper": paper, "authorships": authorships})
	})

	// Body-gesteuerter Endpunkt für komplexe Abfragen
	rg.POST("/query", func(c *gin.Context) {
		type PaperQuery struct {
			Journal      string `json:"journal"`
			Topic        string `json:"topic"`
			Country      string `json:"country"`
			OpenAccess   *bool  `json:"open_access"`
			YearFrom     int    `json:"year_from"`
			YearTo       int    `json:"year_to"`
			MinCitations int    `json:"min_citations"`
			Limit        int    `json:"limit"`
		}

		var req PaperQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Paper{})
		if req.Journal != "" {
			query = query.Where("journal_name = ?", req.Journal)
		}
		if req.Topic != "" {
			query = query.Where("primary_topic = ?", req.Topic)
		}
		if req.Country != "" {
			query = query.Where("first_country = ?", req.Country)
		}
		if req.OpenAccess != nil {
			query = query.Where("is_open_access = ?", *req.OpenAccess)
		}
		if req.YearFrom > 0 {
			query = query.Where("publication_year >= ?", req.YearFrom)
		}
		if req.YearTo > 0 {
			query = query.Where("publication_year <= ?", req.YearTo)
		}
		if req.MinCitations > 0 {
			query = query.Where("cited_by_count >= ?", req.MinCitations)
		}
		if req.Limit <= 0 || req.Limit > 500 {
			req.Limit = 100
		}

		var papers []models.Paper
		if err := query.Order("cited_by_count DESC").Limit(req.Limit).Find(&papers).Error; err != nil {
			log.Error("Database query for papers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, papers)
	})
}

func setupAuthorRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/authors")

	rg.GET("/top", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		var authors []models.Author
		err := db.Where("total_papers > 0").
			Order("total_citations DESC, total_papers DESC").
			Limit(limit).Find(&authors).Error
		if err != nil {
			log.Error("Database query for top authors failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, authors)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")

		var author models.Author
		if err := db.Where("author_id = ?", id).First(&author).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "author not found"})
				return
			}
			log.Error("DB error fetching author", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		var papers []models.Paper
		err := db.Joins("JOIN paper_authors pa ON pa.paper_id = papers.paper_id").
			Where("pa.author_id = ?", id).
			Order("papers.publication_date DESC NULLS LAST").
			Find(&papers).Error
		if err != nil {
			log.Error("DB error fetching author papers", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"author": author, "papers": papers})
	})
}

func setupDashboardRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/dashboard")

	rg.GET("/overview", func(c *gin.Context) {
		var overview struct {
			TotalPapers    int64   `json:"total_papers"`
			TotalAuthors   int64   `json:"total_authors"`
			TotalCitations int64   `json:"total_citations"`
			AvgCitations   float64 `json:"avg_citations"`
			OARatio        float64 `json:"open_access_ratio"`
			RecentPapers   int64   `json:"recent_papers"`
		}

		db.Model(&models.Paper{}).Count(&overview.TotalPapers)
		db.Model(&models.Author{}).Count(&overview.TotalAuthors)
		db.Model(&models.Paper{}).Select("COALESCE(SUM(cited_by_count), 0)").Scan(&overview.TotalCitations)
		db.Model(&models.Paper{}).Where("cited_by_count > 0").
			Select("COALESCE(AVG(cited_by_count), 0)").Scan(&overview.AvgCitations)
		db.Model(&models.Paper{}).Where("publication_date >= ?", time.Now().AddDate(0, 0, -30)).
			Count(&overview.RecentPapers)
		if overview.TotalPapers > 0 {
			var oaCount int64
			db.Model(&models.Paper{}).Where("is_open_access = ?", true).Count(&oaCount)
			overview.OARatio = float64(oaCount) / float64(overview.TotalPapers) * 100
		}

		c.JSON(http.StatusOK, overview)
	})

	rg.GET("/trends", func(c *gin.Context) {
		daysBack, _ := strconv.Atoi(c.DefaultQuery("days", "365"))
		type trendRow struct {
			Month        time.Time `json:"month"`
			PaperCount   int       `json:"paper_count"`
			AvgCitations float64   `json:"avg_citations"`
			OAPapers     int       `json:"oa_papers"`
		}
		var rows []trendRow
		err := db.Raw(`
			SELECT DATE_TRUNC('month', publication_date) AS month,
				COUNT(*) AS paper_count,
				AVG(cited_by_count) AS avg_citations,
				COUNT(CASE WHEN is_open_access THEN 1 END) AS oa_papers
			FROM papers
			WHERE publication_date >= ? AND publication_date IS NOT NULL
			GROUP BY DATE_TRUNC('month', publication_date)
			ORDER BY month DESC
			LIMIT 24`, time.Now().AddDate(0, 0, -daysBack)).Scan(&rows).Error
		if err != nil {
			log.Error("Trend query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	rg.GET("/journals", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "15"))
		type journalRow struct {
			Journal      string  `json:"journal"`
			PaperCount   int     `json:"paper_count"`
			AvgCitations float64 `json:"avg_citations"`
			OAPapers     int     `json:"oa_papers"`
		}
		var rows []journalRow
		err := db.Raw(`
			SELECT journal_name AS journal,
				COUNT(*) AS paper_count,
				AVG(cited_by_count) AS avg_citations,
				COUNT(CASE WHEN is_open_access THEN 1 END) AS oa_papers
			FROM papers
			WHERE journal_name IS NOT NULL AND journal_name <> ''
			GROUP BY journal_name
			HAVING COUNT(*) >= 3
			ORDER BY paper_count DESC
			LIMIT ?`, limit).Scan(&rows).Error
		if err != nil {
			log.Error("Journal query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	rg.GET("/topics", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		type topicRow struct {
			Topic        string  `json:"topic"`
			PaperCount   int     `json:"paper_count"`
			AvgCitations float64 `json:"avg_citations"`
			AIPapers     int     `json:"ai_papers"`
		}
		var rows []topicRow
		err := db.Raw(`
			SELECT primary_topic AS topic,
				COUNT(*) AS paper_count,
				AVG(cited_by_count) AS avg_citations,
				COUNT(CASE WHEN has_ai_field THEN 1 END) AS ai_papers
			FROM papers
			WHERE primary_topic IS NOT NULL AND primary_topic <> ''
			GROUP BY primary_topic
			HAVING COUNT(*) >= 2
			ORDER BY paper_count DESC
			LIMIT ?`, limit).Scan(&rows).Error
		if err != nil {
			log.Error("Topic query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	rg.GET("/countries", func(c *gin.Context) {
		type countryRow struct {
			Country       string  `json:"country"`
			PaperCount    int     `json:"paper_count"`
			UniqueAuthors int     `json:"unique_authors"`
			AvgCitations  float64 `json:"avg_citations"`
		}
		var rows []countryRow
		err := db.Raw(`
			SELECT p.first_country AS country,
				COUNT(*) AS paper_count,
				COUNT(DISTINCT pa.author_id) AS unique_authors,
				AVG(p.cited_by_count) AS avg_citations
			FROM papers p
			LEFT JOIN paper_authors pa ON pa.paper_id = p.paper_id AND pa.author_position = 'first'
			WHERE p.first_country IS NOT NULL AND p.first_country <> ''
			GROUP BY p.first_country
			ORDER BY paper_count DESC
			LIMIT 25`).Scan(&rows).Error
		if err != nil {
			log.Error("Country query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	rg.GET("/recent", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		var papers []models.Paper
		err := db.Where("publication_date IS NOT NULL").
			Order("publication_date DESC, cited_by_count DESC").
			Limit(limit).Find(&papers).Error
		if err != nil {
			log.Error("Recent papers query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, papers)
	})

	rg.GET("/search", func(c *gin.Context) {
		term := c.Query("q")
		if term == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		var papers []models.Paper
		err := db.Where("LOWER(title) LIKE LOWER(?)", "%"+term+"%").
			Order("cited_by_count DESC").
			Limit(limit).Find(&papers).Error
		if err != nil {
			log.Error("Search query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, papers)
	})
}

func setupImportRoutes(router *gin.Engine, pipeline *services.PipelineService, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/import")

	// Startet einen Pipeline-Lauf asynchron. Der Status ist anschließend
	// über /import/runs abrufbar.
	rg.POST("/run", func(c *gin.Context) {
		go func() {
			result, err := pipeline.Run(context.Background(), "api")
			if err != nil {
				log.Error("Manual pipeline run failed", zap.Error(err))
			}
			recordPipelineMetrics(result)
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	})

	rg.GET("/runs", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		var runs []models.ImportRun
		if err := db.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
			log.Error("Database query for import runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})

	rg.POST("/validate", func(c *gin.Context) {
		report := pipeline.Validator.Run(c.Request.Context())
		status := http.StatusOK
		if !report.Passed() {
			status = http.StatusConflict
		}
		c.JSON(status, report)
	})
}
