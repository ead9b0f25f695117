package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"paper-atlas/models"
	"paper-atlas/services"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRouteTestDeps(t *testing.T) (*gorm.DB, *services.PipelineService) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Paper{}, &models.Author{}, &models.PaperAuthor{}, &models.ImportRun{}))

	pipeline := &services.PipelineService{
		DB:        db,
		Logger:    zap.NewNop(),
		Validator: services.NewValidator(db, zap.NewNop(), 10, 100000),
	}
	return db, pipeline
}

func TestImportRoutesLiveUnderImportGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, pipeline := newRouteTestDeps(t)

	router := gin.New()
	setupImportRoutes(router, pipeline, db, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/import/validate", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/import/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Der Validierungs-Endpunkt hängt wie seine Geschwister unter /import.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/validate", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
