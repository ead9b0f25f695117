package services

import (
	"strings"

	"paper-atlas/providers/openalex"
)

// mlTerms sind die Teilgebiete, die mit hohem Gewicht zählen.
var mlTerms = []string{
	"machine learning",
	"deep learning",
	"neural network",
	"computer vision",
	"natural language",
	"reinforcement learning",
}

// RelevanceScore berechnet den KI-Relevanz-Score eines Works aus Keywords,
// Konzepten und Topic-Feldern. Der Wert liegt zwischen 0.0 und 1.0.
func RelevanceScore(w *openalex.Work) float64 {
	score := 0.0

	for _, kw := range w.Keywords {
		name := strings.ToLower(kw.DisplayName)
		if strings.Contains(name, "artificial intelligence") || name == "ai" {
			score = max(score, kw.Score*2.0)
		} else if containsAny(name, mlTerms) {
			score = max(score, kw.Score*1.5)
		}
	}

	for _, c := range w.Concepts {
		name := strings.ToLower(c.DisplayName)
		if strings.Contains(name, "artificial intelligence") {
			score = max(score, c.Score*2.0)
		} else if containsAny(name, mlTerms[:3]) {
			score = max(score, c.Score*1.5)
		}
	}

	if w.PrimaryTopic != nil {
		field := strings.ToLower(w.PrimaryTopic.Field.DisplayName)
		subfield := strings.ToLower(w.PrimaryTopic.Subfield.DisplayName)
		if strings.Contains(field, "artificial intelligence") || strings.Contains(subfield, "artificial intelligence") {
			score = max(score, 0.9)
		} else if strings.Contains(field, "computer science") {
			score = max(score, 0.5)
		}
	}

	for _, t := range w.Topics {
		field := strings.ToLower(t.Field.DisplayName)
		subfield := strings.ToLower(t.Subfield.DisplayName)
		if strings.Contains(field, "artificial intelligence") || strings.Contains(subfield, "artificial intelligence") {
			score = max(score, t.Score*0.8)
		} else if strings.Contains(field, "computer science") {
			score = max(score, t.Score*0.4)
		}
	}

	return min(score, 1.0)
}

// HasAIField meldet, ob "Artificial Intelligence" als Feld oder Unterfeld
// eines Topics vorkommt.
func HasAIField(w *openalex.Work) bool {
	check := func(t *openalex.Topic) bool {
		field := strings.ToLower(t.Field.DisplayName)
		subfield := strings.ToLower(t.Subfield.DisplayName)
		return containsAny(field, []string{"artificial intelligence", "ai"}) ||
			containsAny(subfield, []string{"artificial intelligence", "ai"})
	}

	if w.PrimaryTopic != nil && check(w.PrimaryTopic) {
		return true
	}
	for i := range w.Topics {
		if check(&w.Topics[i]) {
			return true
		}
	}
	return false
}

// IsRelevant meldet, ob ein Work importiert werden soll: entweder liegt der
// Score über dem Schwellwert oder das Work trägt ein KI-Feld.
func IsRelevant(w *openalex.Work, minScore float64) bool {
	return RelevanceScore(w) >= minScore || HasAIField(w)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
