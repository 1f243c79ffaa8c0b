package dto

import (
	"time"

	"github.com/cuongbtq/bulk-sync/internal/ledger"
)

// StartSyncRequest is the body of POST /api/v1/sync/:entity_type.
type StartSyncRequest struct {
	Records []map[string]string `json:"records" binding:"required"`
}

type StartSyncResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ResultDTO struct {
	Title   string `json:"title"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type JobDTO struct {
	JobID            string      `json:"job_id"`
	Status           string      `json:"status"`
	EntityType       string      `json:"entity_type"`
	Progress         int         `json:"progress"`
	TotalRecords     int         `json:"total_records"`
	ProcessedRecords int         `json:"processed_records"`
	SuccessCount     int         `json:"success_count"`
	ErrorCount       int         `json:"error_count"`
	GroupCount       int         `json:"group_count,omitempty"`
	Results          []ResultDTO `json:"results"`
	CreatedAt        string      `json:"created_at"`
	UpdatedAt        string      `json:"updated_at"`
}

type ListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

type DocumentDTO struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Handle string         `json:"handle"`
	Fields map[string]any `json:"fields"`
}

type ListDocumentsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListDocumentsResponse struct {
	Documents  []DocumentDTO `json:"documents"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type CountDocumentsResponse struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// FromJob converts a ledger snapshot into its API representation.
func FromJob(job *ledger.Job) JobDTO {
	results := make([]ResultDTO, len(job.Results))
	for i, r := range job.Results {
		results[i] = ResultDTO{
			Title:   r.Title,
			Status:  string(r.Status),
			Message: r.Message,
		}
	}
	return JobDTO{
		JobID:            job.ID,
		Status:           string(job.Status),
		EntityType:       job.EntityType,
		Progress:         job.Progress(),
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		SuccessCount:     job.SuccessCount,
		ErrorCount:       job.ErrorCount,
		GroupCount:       job.GroupCount,
		Results:          results,
		CreatedAt:        job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        job.UpdatedAt.Format(time.RFC3339),
	}
}
