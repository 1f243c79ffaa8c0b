// Package docstore provides typed CRUD over the remote document store. The
// store itself lives behind the remote API; this adapter handles schema
// bootstrapping, wire-format coercion, and handle-based idempotent upserts.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cuongbtq/bulk-sync/internal/remote"
)

// ErrNotFound is returned when no document matches a handle lookup.
var ErrNotFound = errors.New("document not found")

// SchemaField declares one named, typed field of a document type.
type SchemaField struct {
	Key      string
	Name     string
	Type     FieldType
	Required bool
}

// SchemaDefinition declares a document type and its fields.
type SchemaDefinition struct {
	Type   string
	Name   string
	Fields []SchemaField
}

// Document is a typed record in the remote document store.
type Document struct {
	ID     string
	Type   string
	Handle string
	Fields map[string]any
}

// Page is one page of a document listing.
type Page struct {
	Documents   []Document
	HasNextPage bool
	EndCursor   string
}

// Store is the Document Store Adapter. Schemas registered via EnsureSchema
// drive field encoding for all subsequent writes of that type.
type Store struct {
	api    remote.API
	logger *slog.Logger

	mu      sync.RWMutex
	schemas map[string]SchemaDefinition
}

// NewStore creates a Store over the given remote API.
func NewStore(api remote.API, logger *slog.Logger) *Store {
	return &Store{
		api:     api,
		logger:  logger,
		schemas: make(map[string]SchemaDefinition),
	}
}

const definitionByTypeQuery = `
query DefinitionByType($type: String!) {
  documentDefinitionByType(type: $type) {
    id
    type
  }
}`

const definitionCreateMutation = `
mutation DefinitionCreate($definition: DocumentDefinitionInput!) {
  documentDefinitionCreate(definition: $definition) {
    definition {
      id
      type
    }
    userErrors {
      field
      message
    }
  }
}`

// EnsureSchema makes sure a document definition exists for def.Type,
// creating it only when absent. Safe to call on every boot.
func (s *Store) EnsureSchema(ctx context.Context, def SchemaDefinition) error {
	s.mu.RLock()
	_, seen := s.schemas[def.Type]
	s.mu.RUnlock()
	if seen {
		return nil
	}

	var lookup struct {
		DocumentDefinitionByType *struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"documentDefinitionByType"`
	}
	if err := s.api.Query(ctx, definitionByTypeQuery, map[string]any{"type": def.Type}, &lookup); err != nil {
		return fmt.Errorf("look up definition %s: %w", def.Type, err)
	}

	if lookup.DocumentDefinitionByType == nil {
		fieldDefs := make([]map[string]any, len(def.Fields))
		for i, f := range def.Fields {
			fieldDefs[i] = map[string]any{
				"key":      f.Key,
				"name":     f.Name,
				"type":     string(f.Type),
				"required": f.Required,
			}
		}

		var created struct {
			DocumentDefinitionCreate struct {
				Definition *struct {
					ID string `json:"id"`
				} `json:"definition"`
				UserErrors []remote.UserError `json:"userErrors"`
			} `json:"documentDefinitionCreate"`
		}
		vars := map[string]any{
			"definition": map[string]any{
				"type":   def.Type,
				"name":   def.Name,
				"fields": fieldDefs,
			},
		}
		if err := s.api.Query(ctx, definitionCreateMutation, vars, &created); err != nil {
			return fmt.Errorf("create definition %s: %w", def.Type, err)
		}
		if ue := created.DocumentDefinitionCreate.UserErrors; len(ue) > 0 {
			// The first validation message is the actionable one
			return fmt.Errorf("create definition %s: %s", def.Type, ue[0].Message)
		}

		s.logger.Info("Created document definition", slog.String("type", def.Type))
	}

	s.mu.Lock()
	s.schemas[def.Type] = def
	s.mu.Unlock()

	return nil
}

func (s *Store) fieldType(docType, key string) FieldType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.schemas[docType]
	if !ok {
		return FieldText
	}
	for _, f := range def.Fields {
		if f.Key == key {
			return f.Type
		}
	}
	return FieldText
}

// encodeFields serializes a field map into the wire shape, skipping values
// that must be omitted. Keys are sorted so payloads are deterministic.
func (s *Store) encodeFields(docType string, fields map[string]any) ([]map[string]string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	encoded := make([]map[string]string, 0, len(fields))
	for _, key := range keys {
		value, include, err := encodeField(s.fieldType(docType, key), fields[key])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		if !include {
			continue
		}
		encoded = append(encoded, map[string]string{"key": key, "value": value})
	}
	return encoded, nil
}

// wireDocument is the document shape the remote API returns.
type wireDocument struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Handle string `json:"handle"`
	Fields []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
		Type  string `json:"type"`
	} `json:"fields"`
}

func decodeDocument(wire *wireDocument) *Document {
	doc := &Document{
		ID:     wire.ID,
		Type:   wire.Type,
		Handle: wire.Handle,
		Fields: make(map[string]any, len(wire.Fields)),
	}
	for _, f := range wire.Fields {
		doc.Fields[f.Key] = decodeField(FieldType(f.Type), f.Value)
	}
	return doc
}

const documentCreateMutation = `
mutation DocumentCreate($document: DocumentCreateInput!) {
  documentCreate(document: $document) {
    document {
      id
      type
      handle
      fields {
        key
        value
        type
      }
    }
    userErrors {
      field
      message
    }
  }
}`

// Create writes a new document. An empty handle lets the remote system
// generate one. Field-level rejections come back as *remote.ValidationError.
func (s *Store) Create(ctx context.Context, docType string, fields map[string]any, handle string) (*Document, error) {
	encoded, err := s.encodeFields(docType, fields)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{
		"type":   docType,
		"fields": encoded,
	}
	if handle != "" {
		doc["handle"] = handle
	}

	var resp struct {
		DocumentCreate struct {
			Document   *wireDocument      `json:"document"`
			UserErrors []remote.UserError `json:"userErrors"`
		} `json:"documentCreate"`
	}
	if err := s.api.Query(ctx, documentCreateMutation, map[string]any{"document": doc}, &resp); err != nil {
		return nil, err
	}
	if err := remote.UserErrorsToValidation(resp.DocumentCreate.UserErrors); err != nil {
		return nil, err
	}
	if resp.DocumentCreate.Document == nil {
		return nil, fmt.Errorf("document create returned no document")
	}

	return decodeDocument(resp.DocumentCreate.Document), nil
}

const documentUpdateMutation = `
mutation DocumentUpdate($id: ID!, $document: DocumentUpdateInput!) {
  documentUpdate(id: $id, document: $document) {
    document {
      id
      type
      handle
      fields {
        key
        value
        type
      }
    }
    userErrors {
      field
      message
    }
  }
}`

// Update rewrites the given fields of an existing document.
func (s *Store) Update(ctx context.Context, docType, id string, fields map[string]any) (*Document, error) {
	encoded, err := s.encodeFields(docType, fields)
	if err != nil {
		return nil, err
	}

	var resp struct {
		DocumentUpdate struct {
			Document   *wireDocument      `json:"document"`
			UserErrors []remote.UserError `json:"userErrors"`
		} `json:"documentUpdate"`
	}
	vars := map[string]any{
		"id":       id,
		"document": map[string]any{"fields": encoded},
	}
	if err := s.api.Query(ctx, documentUpdateMutation, vars, &resp); err != nil {
		return nil, err
	}
	if err := remote.UserErrorsToValidation(resp.DocumentUpdate.UserErrors); err != nil {
		return nil, err
	}
	if resp.DocumentUpdate.Document == nil {
		return nil, fmt.Errorf("document update returned no document")
	}

	return decodeDocument(resp.DocumentUpdate.Document), nil
}

const documentByHandleQuery = `
query DocumentByHandle($type: String!, $handle: String!) {
  documentByHandle(handle: { type: $type, handle: $handle }) {
    id
    type
    handle
    fields {
      key
      value
      type
    }
  }
}`

// GetByHandle looks a document up by its deterministic handle. Returns
// ErrNotFound when no document exists, which is what makes the upsert
// protocol idempotent.
func (s *Store) GetByHandle(ctx context.Context, docType, handle string) (*Document, error) {
	var resp struct {
		DocumentByHandle *wireDocument `json:"documentByHandle"`
	}
	vars := map[string]any{"type": docType, "handle": handle}
	if err := s.api.Query(ctx, documentByHandleQuery, vars, &resp); err != nil {
		return nil, err
	}
	if resp.DocumentByHandle == nil {
		return nil, ErrNotFound
	}
	return decodeDocument(resp.DocumentByHandle), nil
}

// Upsert creates the document when no document with the handle exists and
// updates it otherwise. The bool reports whether a create happened.
func (s *Store) Upsert(ctx context.Context, docType, handle string, fields map[string]any) (*Document, bool, error) {
	existing, err := s.GetByHandle(ctx, docType, handle)
	switch {
	case errors.Is(err, ErrNotFound):
		doc, createErr := s.Create(ctx, docType, fields, handle)
		return doc, true, createErr
	case err != nil:
		return nil, false, err
	}

	doc, err := s.Update(ctx, docType, existing.ID, fields)
	return doc, false, err
}

const documentsQuery = `
query Documents($type: String!, $first: Int!, $after: String) {
  documents(type: $type, first: $first, after: $after) {
    edges {
      node {
        id
        type
        handle
        fields {
          key
          value
          type
        }
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

// List returns one page of documents of the given type.
func (s *Store) List(ctx context.Context, docType string, pageSize int, cursor string) (*Page, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	vars := map[string]any{"type": docType, "first": pageSize}
	if cursor != "" {
		vars["after"] = cursor
	}

	var resp struct {
		Documents struct {
			Edges []struct {
				Node wireDocument `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"documents"`
	}
	if err := s.api.Query(ctx, documentsQuery, vars, &resp); err != nil {
		return nil, err
	}

	page := &Page{
		Documents:   make([]Document, 0, len(resp.Documents.Edges)),
		HasNextPage: resp.Documents.PageInfo.HasNextPage,
		EndCursor:   resp.Documents.PageInfo.EndCursor,
	}
	for _, edge := range resp.Documents.Edges {
		node := edge.Node
		page.Documents = append(page.Documents, *decodeDocument(&node))
	}
	return page, nil
}

const documentsCountQuery = `
query DocumentsCount($type: String!) {
  documentsCount(type: $type) {
    count
  }
}`

// Count returns the total number of documents of the given type.
func (s *Store) Count(ctx context.Context, docType string) (int, error) {
	var resp struct {
		DocumentsCount struct {
			Count int `json:"count"`
		} `json:"documentsCount"`
	}
	if err := s.api.Query(ctx, documentsCountQuery, map[string]any{"type": docType}, &resp); err != nil {
		return 0, err
	}
	return resp.DocumentsCount.Count, nil
}
