// Package story provides HTTP handlers for the read-side story feed:
// the ranked feed, single-story lookup, and keyword search.
package story

import (
	"time"

	"newsreel/internal/domain/entity"
)

// DTO is the JSON shape of a story cluster as served to API clients.
type DTO struct {
	ID                string    `json:"id" example:"b3f1c9d2-55e0-4a77-9b0d-9f6e0b1e7a21"`
	Category          string    `json:"category" example:"world"`
	Title             string    `json:"title" example:"Ceasefire talks resume in Geneva"`
	Status            string    `json:"status" example:"BREAKING"`
	VerificationLevel int       `json:"verification_level" example:"3"`
	ImportanceScore   float64   `json:"importance_score" example:"0.82"`
	ConfidenceScore   float64   `json:"confidence_score" example:"0.74"`
	SourceCount       int       `json:"source_count" example:"3"`
	FirstSeen         time.Time `json:"first_seen"`
	LastUpdated       time.Time `json:"last_updated"`
	Summary           string    `json:"summary,omitempty" example:"Negotiators from both sides announced..."`
	SummaryVersion    int       `json:"summary_version,omitempty" example:"2"`
}

func fromEntity(c entity.StoryCluster) DTO {
	return DTO{
		ID:                c.ID,
		Category:          c.Category,
		Title:             c.Title,
		Status:            string(c.Status),
		VerificationLevel: c.VerificationLevel,
		ImportanceScore:   c.ImportanceScore,
		ConfidenceScore:   c.ConfidenceScore,
		SourceCount:       len(c.SourceArticles),
		FirstSeen:         c.FirstSeen,
		LastUpdated:       c.LastUpdated,
		Summary:           c.Summary.Text,
		SummaryVersion:    c.Summary.Version,
	}
}

func fromEntities(clusters []entity.StoryCluster) []DTO {
	out := make([]DTO, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, fromEntity(c))
	}
	return out
}
