// Package entity defines the core domain entities and validation logic for the
// ingestion-to-story pipeline. It contains the fundamental business objects
// such as RawArticle and StoryCluster, along with their invariants and
// domain-specific errors.
package entity

import "time"

// EntityType classifies an extracted named entity.
type EntityType string

const (
	EntityPerson EntityType = "PERSON"
	EntityOrg    EntityType = "ORG"
	EntityLoc    EntityType = "LOC"
	EntityEvent  EntityType = "EVENT"
	EntityOther  EntityType = "OTHER"
)

// NamedEntity is a single entity surfaced from an article's title/body.
type NamedEntity struct {
	Text     string
	Type     EntityType
	Salience float64
}

// RawArticle is an ingested RSS/Atom entry after normalization.
//
// Ownership: created by the poller, mutated only by the poller and
// normalizer to flip Processed to true once the clustering engine has
// consumed it. ID, URL,
// SourceID, and PublishedAt are immutable after creation.
type RawArticle struct {
	ID               string
	SourceID         string
	SourceDomain     string
	SourceTier       int // 1 or 2
	URL              string
	Title            string
	Description      string
	Content          string
	Author           string
	PublishedAt      time.Time
	FetchedAt        time.Time
	PublishedDate    string // YYYY-MM-DD, partition key
	Language         string
	Category         string
	Tags             []string
	Entities         []NamedEntity
	StoryFingerprint string
	ExactHash        string
	SimHash          uint64
	Processed        bool
	ModerationQueue  bool // external-tooling hook, unread by the core pipeline
	NeedsHumanReview bool // external-tooling hook, unread by the core pipeline
}

// HasBody reports whether the article carries text a summarizer can work
// from (§4.5: summarization is skipped without body text).
func (a *RawArticle) HasBody() bool {
	return a.Content != "" || a.Description != ""
}

// Body returns the best available text for summarization and entity extraction.
func (a *RawArticle) Body() string {
	if a.Content != "" {
		return a.Content
	}
	return a.Description
}
