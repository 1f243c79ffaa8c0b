package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/cuongbtq/bulk-sync/internal/docstore"
)

// apiCall records one operation sent to the fake API.
type apiCall struct {
	op   string
	vars map[string]any
}

// fakeAPI dispatches operations to scripted handlers by a distinctive
// fragment of the operation text. Document-store operations default to
// "absent, create succeeds" so adapter tests only script what they assert.
type fakeAPI struct {
	t *testing.T

	mu       sync.Mutex
	handlers []handler
	calls    []apiCall
}

type handler struct {
	fragment string
	fn       func(vars map[string]any) (string, error)
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{t: t}
}

// on registers a scripted response; later registrations win over the
// defaults but earlier ones win among themselves.
func (f *fakeAPI) on(fragment string, fn func(vars map[string]any) (string, error)) {
	f.handlers = append(f.handlers, handler{fragment: fragment, fn: fn})
}

// json is a convenience for static responses.
func (f *fakeAPI) onJSON(fragment, response string) {
	f.on(fragment, func(map[string]any) (string, error) { return response, nil })
}

func (f *fakeAPI) Query(_ context.Context, operation string, variables map[string]any, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{op: operation, vars: variables})
	handlers := make([]handler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()

	respond := func(data string, err error) error {
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal([]byte(data), out)
	}

	for _, h := range handlers {
		if strings.Contains(operation, h.fragment) {
			return respond(h.fn(variables))
		}
	}

	// Defaults for the document mirror so tests don't have to script it
	switch {
	case strings.Contains(operation, "DefinitionByType"):
		return respond(`{"documentDefinitionByType":{"id":"def-1","type":"any"}}`, nil)
	case strings.Contains(operation, "DocumentByHandle"):
		return respond(`{"documentByHandle":null}`, nil)
	case strings.Contains(operation, "DocumentCreate"):
		return respond(`{"documentCreate":{"document":{"id":"doc-1","type":"any","handle":"h","fields":[]},"userErrors":[]}}`, nil)
	case strings.Contains(operation, "DocumentUpdate"):
		return respond(`{"documentUpdate":{"document":{"id":"doc-1","type":"any","handle":"h","fields":[]},"userErrors":[]}}`, nil)
	}

	f.t.Fatalf("unexpected operation: %s", operation)
	return nil
}

// callCount counts calls whose operation contains the fragment.
func (f *fakeAPI) callCount(fragment string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.op, fragment) {
			n++
		}
	}
	return n
}

// lastVars returns the variables of the last call containing the fragment.
func (f *fakeAPI) lastVars(fragment string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if strings.Contains(f.calls[i].op, fragment) {
			return f.calls[i].vars
		}
	}
	return nil
}

func newTestStore(api *fakeAPI) *docstore.Store {
	return docstore.NewStore(api, slog.Default())
}

const emailTakenResponse = `{"companyCreate":{"company":null,"userErrors":[{"field":["companyContact","email"],"message":"Email has already been taken"}]}}`

func companyCreatedResponse(id, name, externalID string) string {
	node := map[string]any{
		"id":         id,
		"name":       name,
		"externalId": externalID,
		"locations": map[string]any{
			"edges": []any{
				map[string]any{"node": map[string]any{"id": id + "-loc-1", "name": "HQ", "externalId": "loc-1"}},
			},
		},
	}
	data, _ := json.Marshal(map[string]any{
		"companyCreate": map[string]any{"company": node, "userErrors": []any{}},
	})
	return string(data)
}

func companiesSearchResponse(nodes ...map[string]any) string {
	edges := make([]any, len(nodes))
	for i, n := range nodes {
		if _, ok := n["locations"]; !ok {
			n["locations"] = map[string]any{"edges": []any{}}
		}
		edges[i] = map[string]any{"node": n}
	}
	data, _ := json.Marshal(map[string]any{
		"companies": map[string]any{"edges": edges},
	})
	return string(data)
}
