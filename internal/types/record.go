package types

import (
	"encoding/json"
	"strconv"
	"time"
	"unicode/utf8"
)

// Item type discriminators for ArticleRecord.
const (
	ItemTypeArticle           = "article"
	ItemTypeArticleWithSource = "article_with_source"
)

// LangUndetermined is the ISO 639-1 sentinel used when language detection
// fails. See ISO 639-1:2002.
const LangUndetermined = "und"

// ArticleRecord is a completed unit of scraper output: one logical article,
// possibly assembled from several fetched pages, possibly carrying nested
// source articles.
type ArticleRecord struct {
	// AcquiredTime is when the first page of this record was fetched.
	AcquiredTime time.Time `json:"acquired_time" bson:"acquired_time"`

	// Body is the article text, concatenated across pages in visitation order.
	Body string `json:"body" bson:"body"`

	// CharacterCount is the number of Unicode code points in Body. Always
	// recomputed from Body by Finalize; never set by hand.
	CharacterCount int `json:"character_count" bson:"character_count"`

	// URL is the first URL associated with this record.
	URL string `json:"url" bson:"url"`

	// Lang is the two-letter language code of the article, or "und" when
	// detection fails.
	Lang string `json:"lang" bson:"lang"`

	// Optional metadata. Each field is independently absent.
	Title         string `json:"title,omitempty" bson:"title,omitempty"`
	Author        string `json:"author,omitempty" bson:"author,omitempty"`
	Description   string `json:"description,omitempty" bson:"description,omitempty"`
	Kind          string `json:"kind,omitempty" bson:"kind,omitempty"`
	SiteName      string `json:"site_name,omitempty" bson:"site_name,omitempty"`
	PublishedTime string `json:"published_time,omitempty" bson:"published_time,omitempty"`
	ModifiedTime  string `json:"modified_time,omitempty" bson:"modified_time,omitempty"`

	// ItemType discriminates the record variant. Set by Finalize.
	ItemType string `json:"item_type" bson:"item_type"`

	// Sources holds nested source articles in discovery order. Empty unless
	// the record was produced by a traversal that found source links.
	Sources []*ArticleRecord `json:"sources,omitempty" bson:"sources,omitempty"`
}

// Finalize recomputes the derived fields before emission: CharacterCount
// from Body, and ItemType from the presence of sources. The record must not
// be mutated after Finalize.
func (r *ArticleRecord) Finalize() {
	r.CharacterCount = utf8.RuneCountInString(r.Body)
	if len(r.Sources) > 0 {
		r.ItemType = ItemTypeArticleWithSource
	} else {
		r.ItemType = ItemTypeArticle
	}
}

// HasSources returns true if the record carries nested source articles.
func (r *ArticleRecord) HasSources() bool {
	return len(r.Sources) > 0
}

// ToJSON serializes the record to JSON bytes.
func (r *ArticleRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ToFlatMap returns a flat string map suitable for CSV export. Nested
// sources are collapsed into a JSON column.
func (r *ArticleRecord) ToFlatMap() map[string]string {
	flat := map[string]string{
		"acquired_time":   r.AcquiredTime.Format(time.RFC3339),
		"body":            r.Body,
		"character_count": strconv.Itoa(r.CharacterCount),
		"url":             r.URL,
		"lang":            r.Lang,
		"title":           r.Title,
		"author":          r.Author,
		"description":     r.Description,
		"kind":            r.Kind,
		"site_name":       r.SiteName,
		"published_time":  r.PublishedTime,
		"modified_time":   r.ModifiedTime,
		"item_type":       r.ItemType,
	}
	if len(r.Sources) > 0 {
		b, _ := json.Marshal(r.Sources)
		flat["sources"] = string(b)
	} else {
		flat["sources"] = ""
	}
	return flat
}
