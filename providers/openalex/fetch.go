package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-atlas/config"
)

const perPage = 200

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher lädt Works über die OpenAlex-API, mit Cursor-Paginierung und
// Rate-Limiting gemäß der "polite pool"-Konvention.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	limiter *rate.Limiter

	// conceptID wird beim ersten Abruf aufgelöst und danach wiederverwendet.
	conceptID string
}

// NewFetcher erstellt einen neuen OpenAlex-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.OpenAlexRateLimit), 1),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "openalex"
}

// FetchRecent lädt alle Works zum konfigurierten Konzept, die in den letzten
// `days` Tagen angelegt wurden.
func (f *Fetcher) FetchRecent(ctx context.Context, days int) ([]Work, error) {
	conceptID, err := f.findConceptID(ctx)
	if err != nil {
		return nil, fmt.Errorf("Konzept-ID konnte nicht aufgelöst werden: %w", err)
	}

	fromDate := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	filter := fmt.Sprintf("concepts.id:%s,from_created_date:%s", conceptID, fromDate)

	log := f.Logger.With(zap.String("filter", filter))
	log.Info("Starte OpenAlex-Abruf.")

	var works []Work
	cursor := "*"
	for page := 0; page < f.Config.OpenAlexMaxPages && cursor != ""; page++ {
		params := url.Values{}
		params.Set("filter", filter)
		params.Set("per-page", fmt.Sprint(perPage))
		params.Set("cursor", cursor)
		if f.Config.OpenAlexMailto != "" {
			params.Set("mailto", f.Config.OpenAlexMailto)
		}

		var resp worksResponse
		if err := f.getJSON(ctx, f.Config.OpenAlexBaseURL+"/works?"+params.Encode(), &resp); err != nil {
			return nil, err
		}
		works = append(works, resp.Results...)
		cursor = resp.Meta.NextCursor

		log.Debug("Seite geladen", zap.Int("page", page+1), zap.Int("total", len(works)))
	}

	log.Info("OpenAlex-Abruf abgeschlossen", zap.Int("works", len(works)))
	return works, nil
}

// findConceptID sucht das Konzept zum konfigurierten Suchterm und wählt bei
// mehreren Treffern das meistzitierte aus.
func (f *Fetcher) findConceptID(ctx context.Context) (string, error) {
	if f.conceptID != "" {
		return f.conceptID, nil
	}

	params := url.Values{}
	params.Set("search", f.Config.OpenAlexConceptTerm)
	if f.Config.OpenAlexMailto != "" {
		params.Set("mailto", f.Config.OpenAlexMailto)
	}

	var resp conceptsResponse
	if err := f.getJSON(ctx, f.Config.OpenAlexBaseURL+"/concepts?"+params.Encode(), &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("kein Konzept für %q gefunden", f.Config.OpenAlexConceptTerm)
	}

	best := resp.Results[0]
	for _, c := range resp.Results[1:] {
		if c.CitedByCount > best.CitedByCount {
			best = c
		}
	}

	f.Logger.Info("Konzept aufgelöst",
		zap.String("term", f.Config.OpenAlexConceptTerm),
		zap.String("concept_id", best.ID),
		zap.String("display_name", best.DisplayName))

	f.conceptID = best.ID
	return best.ID, nil
}

// getJSON holt eine URL mit Rate-Limit und Retry (exponentielles Backoff bei
// HTTP 429/5xx) und dekodiert die Antwort.
func (f *Fetcher) getJSON(ctx context.Context, rawURL string, out any) error {
	const maxAttempts = 4

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			if resp.StatusCode == http.StatusOK {
				err = json.NewDecoder(resp.Body).Decode(out)
				resp.Body.Close()
				return err
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("OpenAlex antwortete mit Status %d", resp.StatusCode)
			if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
				return lastErr
			}
		}

		backoff := time.Duration(1<<attempt) * time.Second
		f.Logger.Warn("Abruf fehlgeschlagen, versuche erneut",
			zap.Error(lastErr), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// worksResponse ist die paginierte Antwort der Works-API.
type worksResponse struct {
	Meta struct {
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
	Results []Work `json:"results"`
}

// conceptsResponse ist die Antwort der Concepts-API.
type conceptsResponse struct {
	Results []Concept `json:"results"`
}
