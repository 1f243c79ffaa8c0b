package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/bulk-sync/internal/docstore"
	"github.com/cuongbtq/bulk-sync/internal/remote"
)

// CollectionDocType is the document type collection records mirror into.
const CollectionDocType = "collection_record"

// CollectionAdapter syncs product groupings. Collections are addressed by
// handle, so the upsert is a plain lookup-then-create-or-update.
type CollectionAdapter struct {
	api    remote.API
	store  *docstore.Store
	logger *slog.Logger
}

// NewCollectionAdapter creates the collections sync adapter.
func NewCollectionAdapter(api remote.API, store *docstore.Store, logger *slog.Logger) *CollectionAdapter {
	return &CollectionAdapter{api: api, store: store, logger: logger}
}

func (a *CollectionAdapter) EntityType() string { return "collections" }

// GroupKey returns "" because collections have no ordering dependency.
func (a *CollectionAdapter) GroupKey(Record) string { return "" }

func (a *CollectionAdapter) Definition() docstore.SchemaDefinition {
	return docstore.SchemaDefinition{
		Type: CollectionDocType,
		Name: "Collection Record",
		Fields: []docstore.SchemaField{
			{Key: "title", Name: "Title", Type: docstore.FieldText, Required: true},
			{Key: "collection_ref", Name: "Collection Reference", Type: docstore.FieldReference},
			{Key: "description", Name: "Description", Type: docstore.FieldText},
			{Key: "product_skus", Name: "Product SKUs", Type: docstore.FieldJSON},
			{Key: "synced_at", Name: "Synced At", Type: docstore.FieldDatetime},
		},
	}
}

type collectionNode struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

const collectionByHandleQuery = `
query CollectionByHandle($handle: String!) {
  collectionByHandle(handle: $handle) {
    id
    title
    handle
  }
}`

const collectionCreateMutation = `
mutation CollectionCreate($input: CollectionInput!) {
  collectionCreate(input: $input) {
    collection {
      id
      title
      handle
    }
    userErrors {
      field
      message
    }
  }
}`

const collectionUpdateMutation = `
mutation CollectionUpdate($input: CollectionInput!) {
  collectionUpdate(input: $input) {
    collection {
      id
      title
      handle
    }
    userErrors {
      field
      message
    }
  }
}`

// Sync upserts one collection by handle and mirrors it into the document
// store.
func (a *CollectionAdapter) Sync(ctx context.Context, rec Record) (*Outcome, error) {
	title := rec.Get("collection_title", "title")
	if title == "" {
		return nil, fmt.Errorf("collection title is required")
	}

	handle := rec.Get("collection_handle", "handle")
	if handle == "" {
		handle = docstore.Handle(title)
	}

	existing, err := a.findByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}

	input := map[string]any{
		"title":  title,
		"handle": handle,
	}
	if rec.Has("description") {
		input["descriptionHtml"] = rec.Get("description")
	}

	outcome := &Outcome{Title: title}
	var collection *collectionNode
	if existing == nil {
		collection, err = a.create(ctx, input)
		if err != nil {
			return nil, err
		}
		outcome.Created = true
		outcome.Detail = fmt.Sprintf("created with handle %q", handle)
	} else {
		input["id"] = existing.ID
		collection, err = a.update(ctx, input)
		if err != nil {
			return nil, err
		}
		outcome.Detail = fmt.Sprintf("updated existing collection %q", handle)
	}
	outcome.PrimaryKey = collection.ID

	if err := a.mirror(ctx, rec, collection); err != nil {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("synced remotely but document mirror failed: %v", err))
	}

	return outcome, nil
}

func (a *CollectionAdapter) findByHandle(ctx context.Context, handle string) (*collectionNode, error) {
	var resp struct {
		CollectionByHandle *collectionNode `json:"collectionByHandle"`
	}
	if err := a.api.Query(ctx, collectionByHandleQuery, map[string]any{"handle": handle}, &resp); err != nil {
		return nil, fmt.Errorf("collection lookup: %w", err)
	}
	return resp.CollectionByHandle, nil
}

func (a *CollectionAdapter) create(ctx context.Context, input map[string]any) (*collectionNode, error) {
	var resp struct {
		CollectionCreate struct {
			Collection *collectionNode    `json:"collection"`
			UserErrors []remote.UserError `json:"userErrors"`
		} `json:"collectionCreate"`
	}
	if err := a.api.Query(ctx, collectionCreateMutation, map[string]any{"input": input}, &resp); err != nil {
		return nil, err
	}
	if err := remote.UserErrorsToValidation(resp.CollectionCreate.UserErrors); err != nil {
		return nil, err
	}
	if resp.CollectionCreate.Collection == nil {
		return nil, fmt.Errorf("collection create returned no collection")
	}
	return resp.CollectionCreate.Collection, nil
}

func (a *CollectionAdapter) update(ctx context.Context, input map[string]any) (*collectionNode, error) {
	var resp struct {
		CollectionUpdate struct {
			Collection *collectionNode    `json:"collection"`
			UserErrors []remote.UserError `json:"userErrors"`
		} `json:"collectionUpdate"`
	}
	if err := a.api.Query(ctx, collectionUpdateMutation, map[string]any{"input": input}, &resp); err != nil {
		return nil, err
	}
	if err := remote.UserErrorsToValidation(resp.CollectionUpdate.UserErrors); err != nil {
		return nil, err
	}
	if resp.CollectionUpdate.Collection == nil {
		return nil, fmt.Errorf("collection update returned no collection")
	}
	return resp.CollectionUpdate.Collection, nil
}

// splitList splits a comma or semicolon separated value list.
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(f); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (a *CollectionAdapter) mirror(ctx context.Context, rec Record, collection *collectionNode) error {
	fields := map[string]any{
		"title":          collection.Title,
		"collection_ref": collection.ID,
		"description":    rec.Get("description"),
		"product_skus":   splitList(rec.Get("product_skus", "skus")),
		"synced_at":      time.Now().UTC(),
	}

	_, _, err := a.store.Upsert(ctx, CollectionDocType, docstore.Handle("collection", collection.Handle), fields)
	return err
}
