package api

import (
	"github.com/starford/kbsync/internal/index"
	"github.com/starford/kbsync/internal/kbservice"
	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/transform"
)

// SaveNoteRequest is the request body for saving a note. Dates use YYYY-MM-DD.
type SaveNoteRequest struct {
	Title     string `json:"title" example:"Late arrivals" validate:"required"`
	Content   string `json:"content" example:"Call the front desk." validate:"required"`
	Category  string `json:"category" example:"Scheduling" validate:"required"`
	Location  string `json:"location,omitempty" example:"North Clinic"`
	StartDate string `json:"start_date,omitempty" example:"2024-06-01"`
	EndDate   string `json:"end_date,omitempty" example:"2024-06-30"`
	Overwrite bool   `json:"overwrite"`
}

// note converts the request into a domain note.
func (r SaveNoteRequest) note() (*models.Note, error) {
	n := &models.Note{
		Title:    r.Title,
		Content:  r.Content,
		Location: r.Location,
	}
	if cat, ok := models.ParseCategory(r.Category); ok {
		n.Category = cat
	} else {
		n.Category = models.Category(r.Category)
	}
	var err error
	if n.EffectiveStart, err = parseDate("start_date", r.StartDate); err != nil {
		return nil, err
	}
	if n.EffectiveEnd, err = parseDate("end_date", r.EndDate); err != nil {
		return nil, err
	}
	return n, nil
}

// StartJobRequest re-triggers a conversion for a stored source file.
type StartJobRequest struct {
	Bucket string `json:"bucket" example:"epic-scheduling" validate:"required"`
	Folder string `json:"folder" example:"Locations_Rooms" validate:"required"`
	Name   string `json:"name" example:"rooms_2024.csv" validate:"required"`
}

// WriteResponse is returned after a document upload or note save.
type WriteResponse = kbservice.WriteResult

// CatalogResponse is the filtered catalog.
type CatalogResponse = kbservice.CatalogView

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// JobListResponse wraps tracked conversion jobs.
type JobListResponse struct {
	Jobs []transform.Job `json:"jobs" validate:"required"`
}
