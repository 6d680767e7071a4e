package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SentinelCategory is assigned when a paper carries no categories, or when
// a ledger entry is backfilled for a derived-store item whose primary
// record no longer exists.
const SentinelCategory = "unknown"

// PaperRecord is the primary store's document shape. The subsystem reads
// these records and never mutates them; `id` is the natural key and is
// stable across re-ingestion.
type PaperRecord struct {
	ID         string   `bson:"id" json:"id"`
	Title      string   `bson:"title" json:"title"`
	Summary    string   `bson:"summary" json:"summary"`
	Published  string   `bson:"published" json:"published"`
	Updated    string   `bson:"updated,omitempty" json:"updated,omitempty"`
	Authors    []string `bson:"authors" json:"authors"`
	Categories []string `bson:"categories" json:"categories"`
	ArxivURL   string   `bson:"arxiv_url,omitempty" json:"arxiv_url,omitempty"`
	PDFURL     string   `bson:"pdf_url,omitempty" json:"pdf_url,omitempty"`
}

// PrimaryCategory returns the first category, or the sentinel when the
// record has none.
func (p PaperRecord) PrimaryCategory() string {
	if len(p.Categories) == 0 || p.Categories[0] == "" {
		return SentinelCategory
	}
	return p.Categories[0]
}

// Fingerprint is a stable content hash used to detect upstream edits that
// require a re-sync. It covers exactly the fields replicated downstream.
func (p PaperRecord) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(p.Title))
	h.Write([]byte{0x1f})
	h.Write([]byte(p.Summary))
	h.Write([]byte{0x1f})
	h.Write([]byte(p.Published))
	return hex.EncodeToString(h.Sum(nil))
}

// LedgerEntry tracks one successfully replicated paper. DerivedRef is the
// derived store's identifier for the item (the Qdrant point id for vector
// runs, the paper id itself for graph runs).
type LedgerEntry struct {
	PaperID            string    `bson:"paper_id" json:"paper_id"`
	Category           string    `bson:"category" json:"category"`
	ProcessedAt        time.Time `bson:"processed_at" json:"processed_at"`
	DerivedRef         string    `bson:"derived_ref,omitempty" json:"derived_ref,omitempty"`
	ContentFingerprint string    `bson:"content_fingerprint,omitempty" json:"content_fingerprint,omitempty"`
	SummaryLength      int       `bson:"summary_length" json:"summary_length"`
	Published          string    `bson:"published,omitempty" json:"published,omitempty"`
}

// ScanFilter narrows a primary-store scan.
type ScanFilter struct {
	Categories    []string
	PublishedFrom string
	PublishedTo   string
	ExcludeIDs    []string
	RequireText   bool
}

// RunStats is the surface consumed by the CLI/API layer after a run.
type RunStats struct {
	BatchesProcessed int           `json:"batches_processed"`
	Succeeded        int           `json:"items_succeeded"`
	Failed           int           `json:"items_failed"`
	Skipped          int           `json:"items_skipped"`
	Duration         time.Duration `json:"duration"`
}

func (s *RunStats) Add(other RunStats) {
	s.BatchesProcessed += other.BatchesProcessed
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}
