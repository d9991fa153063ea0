// Package scraper implements the fetch → extract → persist pipeline for
// AutoRia vehicle listings.
package scraper

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// ListingRecord is one vehicle ad, identified by its URL. Optional fields use
// pgtype values so that "present" vs "absent" is an explicit Valid flag all
// the way from extraction to the database row. datetime_found is assigned by
// the store at insert time, never by the extractor.
type ListingRecord struct {
	URL         string
	Title       string
	PriceUSD    pgtype.Int8
	Odometer    pgtype.Int8
	Username    pgtype.Text
	PhoneNumber pgtype.Text
	ImageURL    pgtype.Text
	ImagesCount pgtype.Int8
	CarNumber   pgtype.Text
	CarVIN      pgtype.Text
}

// Outcome classifies the result of persisting a single record.
type Outcome int

// Persist outcomes.
const (
	// Inserted means the record's URL was unseen and a row was written.
	Inserted Outcome = iota
	// SkippedDuplicate means a row with this URL already exists. This is the
	// steady-state result when re-crawling previously seen ads, not an error.
	SkippedDuplicate
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case SkippedDuplicate:
		return "skipped_duplicate"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ListingStore persists listing records with URL-based deduplication. The
// uniqueness invariant is enforced by the storage layer, so concurrent
// workers racing on the same URL observe exactly one Inserted.
type ListingStore interface {
	Insert(ctx context.Context, rec ListingRecord) (Outcome, error)
}

// Fetcher retrieves a single page, retrying transient failures internally.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// CycleStats aggregates the outcome counts of one scrape cycle.
type CycleStats struct {
	// CycleID correlates log lines and published events for one cycle.
	CycleID   string `json:"-"`
	Attempted int    `json:"attempted"`
	Inserted  int    `json:"inserted"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// FetchError is the terminal error returned after all fetch attempts for a
// URL have failed. The URL is skipped for the cycle; the cycle continues.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractError means a page could not yield a usable record (missing URL or
// title). The record is dropped; extraction is never retried.
type ExtractError struct {
	URL    string
	Reason string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}
