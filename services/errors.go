package services

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// MalformedRecordError bedeutet: der Roh-Record ist unbrauchbar und wird als
// fehlgeschlagen gezählt, der Import läuft aber weiter.
type MalformedRecordError struct {
	RecordID string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("fehlerhafter Record %s: %s", e.RecordID, e.Reason)
}

// UpsertError bedeutet: das Schreiben einer einzelnen Entität ist gescheitert,
// die Transaktion des Records wurde zurückgerollt.
type UpsertError struct {
	Entity string
	Key    string
	Reason string
	Err    error
}

func (e *UpsertError) Error() string {
	msg := fmt.Sprintf("Upsert von %s %s fehlgeschlagen: %s", e.Entity, e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpsertError) Unwrap() error { return e.Err }

// StoreUnavailableError bedeutet: die Datenbank ist nicht erreichbar. Der
// laufende Import wird abgebrochen statt Record für Record zu scheitern.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("Datenbank nicht erreichbar bei %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// isConnectionError klassifiziert Treiberfehler, die auf einen Ausfall der
// Datenbank statt auf fehlerhafte Daten hindeuten.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"database is closed",
		"driver: bad connection",
		"no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
