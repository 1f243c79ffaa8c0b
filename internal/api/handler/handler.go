package handler

import (
	"log/slog"

	"github.com/cuongbtq/bulk-sync/internal/docstore"
	"github.com/cuongbtq/bulk-sync/internal/ledger"
	"github.com/cuongbtq/bulk-sync/internal/syncer"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Orchestrator *syncer.Orchestrator
	Ledger       *ledger.Ledger
	Store        *docstore.Store
}

// SyncHandler handles sync job HTTP requests
type SyncHandler struct {
	logger       *slog.Logger
	orchestrator *syncer.Orchestrator
	ledger       *ledger.Ledger
}

// NewSyncHandler creates a new SyncHandler instance
func NewSyncHandler(deps *Dependencies) *SyncHandler {
	return &SyncHandler{
		logger:       deps.Logger,
		orchestrator: deps.Orchestrator,
		ledger:       deps.Ledger,
	}
}

// DocumentHandler handles document export HTTP requests
type DocumentHandler struct {
	logger *slog.Logger
	store  *docstore.Store
}

// NewDocumentHandler creates a new DocumentHandler instance
func NewDocumentHandler(deps *Dependencies) *DocumentHandler {
	return &DocumentHandler{
		logger: deps.Logger,
		store:  deps.Store,
	}
}
