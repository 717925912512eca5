package models

import (
	"time"
)

// Record is one extracted product observation. Records are values; once
// emitted by the extractor they are not modified.
type Record struct {
	Source        string    `json:"source"`
	CapturedAt    time.Time `json:"captured_at"`
	ExternalID    string    `json:"external_id,omitempty"`
	Name          string    `json:"name"`
	Brand         string    `json:"brand,omitempty"`
	CurrentPrice  float64   `json:"current_price"`
	PreviousPrice *float64  `json:"previous_price,omitempty"`
	PackagingText string    `json:"packaging_text,omitempty"`
	UnitPrice     *float64  `json:"unit_price,omitempty"`
	UnitBase      string    `json:"unit_base,omitempty"`
	Category      string    `json:"category,omitempty"`
	PromoLabel    string    `json:"promo_label,omitempty"`
	PromoUntil    string    `json:"promo_until,omitempty"`
	Available     *bool     `json:"available,omitempty"`
	ImageRef      string    `json:"image_ref,omitempty"`
	DetailURL     string    `json:"detail_url,omitempty"`
}

// Discounted reports whether the record carries a higher reference price.
func (r *Record) Discounted() bool {
	return r.PreviousPrice != nil && *r.PreviousPrice > r.CurrentPrice
}

// Key identifies the record within its source.
func (r *Record) Key() string {
	if r.ExternalID != "" {
		return r.Source + ":" + r.ExternalID
	}
	return r.Source + ":" + r.DetailURL
}

// Progress is a snapshot of a running extraction.
type Progress struct {
	Processed int `json:"processed"`
	Kept      int `json:"kept"`
	Skipped   int `json:"skipped"`
	Round     int `json:"round"`
	Cursor    int `json:"cursor"`
}

// Stop reasons reported in RunResult.
const (
	StopTarget    = "target_reached"
	StopCancelled = "cancelled"
	StopMaxRounds = "max_rounds"
	StopExhausted = "source_exhausted"
	StopFailed    = "source_failed"
)

// RunResult is the outcome of one extraction run. NextOffset is the value to
// pass back as the start offset to resume.
type RunResult struct {
	Records     []Record `json:"records"`
	Processed   int      `json:"processed"`
	Kept        int      `json:"kept"`
	Skipped     int      `json:"skipped"`
	FailedPages int      `json:"failed_pages"`
	Rounds      int      `json:"rounds"`
	NextOffset  int      `json:"next_offset"`
	Cancelled   bool     `json:"cancelled"`
	StopReason  string   `json:"stop_reason"`
}

// Progress returns the counters of the result as a progress snapshot.
func (r *RunResult) Progress() Progress {
	return Progress{
		Processed: r.Processed,
		Kept:      r.Kept,
		Skipped:   r.Skipped,
		Round:     r.Rounds,
		Cursor:    r.NextOffset,
	}
}
