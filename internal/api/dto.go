package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/noteservice"
)

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// RenderedNote is the render response (aliased from the domain layer).
type RenderedNote = noteservice.RenderedNote

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// ResizeReport is one container size report for a thumbnail element.
type ResizeReport struct {
	Element string  `json:"element" example:"e1" validate:"required"`
	Width   float64 `json:"width" example:"640" validate:"required"`
	DPR     float64 `json:"dpr,omitempty" example:"2"`
}

// Validate checks a single report.
func (r ResizeReport) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Element, validation.Required),
		validation.Field(&r.Width, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&r.DPR, validation.Min(0.0)),
	)
}

// ResizeResponse lists which reports were applied.
type ResizeResponse struct {
	Accepted []string `json:"accepted" validate:"required"`
	Missing  []string `json:"missing" validate:"required"`
}
