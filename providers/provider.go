package providers

import (
	"context"

	"paper-atlas/providers/openalex"
)

// Provider ist das Interface, das jede Metadaten-Quelle implementieren muss.
type Provider interface {
	// FetchRecent lädt alle Works, die in den letzten `days` Tagen angelegt wurden.
	FetchRecent(ctx context.Context, days int) ([]openalex.Work, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "openalex").
	Name() string
}
