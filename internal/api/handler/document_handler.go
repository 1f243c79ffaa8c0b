package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/bulk-sync/internal/api/dto"
	"github.com/gin-gonic/gin"
)

const (
	defaultDocumentPageSize = 20
	maxDocumentPageSize     = 100
)

// ListDocuments handles GET /api/v1/documents/:type
// Pages through mirrored documents of one type
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docType := c.Param("type")

	var req dto.ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultDocumentPageSize
	}
	if req.PageSize > maxDocumentPageSize {
		req.PageSize = maxDocumentPageSize
	}

	page, err := h.store.List(c.Request.Context(), docType, req.PageSize, req.Cursor)
	if err != nil {
		h.logger.Error("Failed to list documents",
			slog.String("type", docType),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to list documents",
		})
		return
	}

	resp := dto.ListDocumentsResponse{
		Documents: make([]dto.DocumentDTO, len(page.Documents)),
	}
	for i, doc := range page.Documents {
		resp.Documents[i] = dto.DocumentDTO{
			ID:     doc.ID,
			Type:   doc.Type,
			Handle: doc.Handle,
			Fields: doc.Fields,
		}
	}
	if page.HasNextPage {
		resp.NextCursor = page.EndCursor
	}

	c.JSON(http.StatusOK, resp)
}

// CountDocuments handles GET /api/v1/documents/:type/count
func (h *DocumentHandler) CountDocuments(c *gin.Context) {
	docType := c.Param("type")

	count, err := h.store.Count(c.Request.Context(), docType)
	if err != nil {
		h.logger.Error("Failed to count documents",
			slog.String("type", docType),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to count documents",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CountDocumentsResponse{
		Type:  docType,
		Count: count,
	})
}
