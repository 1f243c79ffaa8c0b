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

// CompanyDocType is the document type company records mirror into.
const CompanyDocType = "company_record"

// CompanyAdapter syncs organizations and their locations. Rows sharing a
// company external id (or name) form one group: the first row creates the
// company with its location and main contact inline, subsequent rows add
// locations as dependent steps.
type CompanyAdapter struct {
	api    remote.API
	store  *docstore.Store
	logger *slog.Logger
}

// NewCompanyAdapter creates the companies sync adapter.
func NewCompanyAdapter(api remote.API, store *docstore.Store, logger *slog.Logger) *CompanyAdapter {
	return &CompanyAdapter{api: api, store: store, logger: logger}
}

func (a *CompanyAdapter) EntityType() string { return "companies" }

func (a *CompanyAdapter) GroupKey(rec Record) string {
	return rec.Get("company_external_id", "company_name")
}

func (a *CompanyAdapter) Definition() docstore.SchemaDefinition {
	return docstore.SchemaDefinition{
		Type: CompanyDocType,
		Name: "Company Record",
		Fields: []docstore.SchemaField{
			{Key: "name", Name: "Name", Type: docstore.FieldText, Required: true},
			{Key: "external_id", Name: "External ID", Type: docstore.FieldText},
			{Key: "company_ref", Name: "Company Reference", Type: docstore.FieldReference},
			{Key: "contact_email", Name: "Contact Email", Type: docstore.FieldText},
			{Key: "locations", Name: "Locations", Type: docstore.FieldJSON},
			{Key: "synced_at", Name: "Synced At", Type: docstore.FieldDatetime},
		},
	}
}

type companyLocationNode struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExternalID string `json:"externalId"`
}

type companyNode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ExternalID  string `json:"externalId"`
	MainContact *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"mainContact"`
	Locations struct {
		Edges []struct {
			Node companyLocationNode `json:"node"`
		} `json:"edges"`
	} `json:"locations"`
}

func (n *companyNode) locationNodes() []companyLocationNode {
	nodes := make([]companyLocationNode, 0, len(n.Locations.Edges))
	for _, e := range n.Locations.Edges {
		nodes = append(nodes, e.Node)
	}
	return nodes
}

const companiesSearchQuery = `
query CompaniesSearch($query: String!) {
  companies(first: 1, query: $query) {
    edges {
      node {
        id
        name
        externalId
        mainContact {
          id
          email
        }
        locations(first: 50) {
          edges {
            node {
              id
              name
              externalId
            }
          }
        }
      }
    }
  }
}`

const companyCreateMutation = `
mutation CompanyCreate($input: CompanyCreateInput!) {
  companyCreate(input: $input) {
    company {
      id
      name
      externalId
      locations(first: 50) {
        edges {
          node {
            id
            name
            externalId
          }
        }
      }
    }
    userErrors {
      field
      message
    }
  }
}`

const companyLocationCreateMutation = `
mutation CompanyLocationCreate($companyId: ID!, $input: CompanyLocationInput!) {
  companyLocationCreate(companyId: $companyId, input: $input) {
    companyLocation {
      id
      name
      externalId
    }
    userErrors {
      field
      message
    }
  }
}`

// Sync looks the company up by external id, then exact name, and creates it
// with its first location and main contact when absent. Rows after the
// first in a group find the company already present and attach their
// location as a dependent step.
func (a *CompanyAdapter) Sync(ctx context.Context, rec Record) (*Outcome, error) {
	name := rec.Get("company_name", "name")
	if name == "" {
		return nil, fmt.Errorf("company name is required")
	}
	externalID := rec.Get("company_external_id", "external_id")

	outcome := &Outcome{Title: name}

	company, err := a.findCompany(ctx, externalID, name)
	if err != nil {
		return nil, err
	}

	locationAttached := false
	if company == nil {
		var warning string
		company, warning, err = a.createCompany(ctx, rec, name, externalID)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			// Relinked to an existing company instead of creating one
			outcome.Warnings = append(outcome.Warnings, warning)
		} else {
			outcome.Created = true
			locationAttached = rec.Has("location_name")
		}
	}
	outcome.PrimaryKey = company.ID

	if !locationAttached && rec.Has("location_name") {
		locName, err := a.ensureLocation(ctx, company, rec)
		if err != nil {
			return nil, fmt.Errorf("location %q: %w", rec.Get("location_name"), err)
		}
		outcome.Detail = fmt.Sprintf("location %q attached", locName)
	}

	if err := a.mirror(ctx, rec, company); err != nil {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("synced remotely but document mirror failed: %v", err))
	}

	return outcome, nil
}

// findCompany looks up by external id first, falling back to an exact name
// match. Returns nil when neither matches.
func (a *CompanyAdapter) findCompany(ctx context.Context, externalID, name string) (*companyNode, error) {
	if externalID != "" {
		node, err := a.searchOne(ctx, fmt.Sprintf("external_id:%q", externalID))
		if err != nil {
			return nil, err
		}
		if node != nil && node.ExternalID == externalID {
			return node, nil
		}
	}

	node, err := a.searchOne(ctx, fmt.Sprintf("name:%q", name))
	if err != nil {
		return nil, err
	}
	if node != nil && strings.EqualFold(node.Name, name) {
		return node, nil
	}
	return nil, nil
}

func (a *CompanyAdapter) searchOne(ctx context.Context, query string) (*companyNode, error) {
	var resp struct {
		Companies struct {
			Edges []struct {
				Node companyNode `json:"node"`
			} `json:"edges"`
		} `json:"companies"`
	}
	if err := a.api.Query(ctx, companiesSearchQuery, map[string]any{"query": query}, &resp); err != nil {
		return nil, fmt.Errorf("company lookup: %w", err)
	}
	if len(resp.Companies.Edges) == 0 {
		return nil, nil
	}
	node := resp.Companies.Edges[0].Node
	return &node, nil
}

// createCompany attempts creation, recovering from a uniqueness conflict on
// the contact email: relink when the conflicting company matches on
// external id or name, otherwise regenerate the email deterministically and
// retry a bounded number of times. A non-empty warning means the record was
// relinked or synced with a substituted email.
func (a *CompanyAdapter) createCompany(ctx context.Context, rec Record, name, externalID string) (*companyNode, string, error) {
	email := rec.Get("contact_email", "email")
	if email == "" {
		// The remote system requires a main contact; derive a stable one
		email = docstore.Handle("contact", firstNonEmpty(externalID, name)) + "@sync.invalid"
	}

	company, err := a.attemptCreate(ctx, rec, name, externalID, email)
	if err == nil {
		return company, "", nil
	}
	if !remote.IsConflict(err) {
		return nil, "", err
	}

	// Recovery (a): the email belongs to an existing company. Relink only
	// when it matches this record on external id or name; a mismatched
	// company is never silently adopted.
	owner, lookupErr := a.searchOne(ctx, fmt.Sprintf("contact_email:%q", email))
	if lookupErr == nil && owner != nil {
		if (externalID != "" && owner.ExternalID == externalID) || strings.EqualFold(owner.Name, name) {
			return owner, fmt.Sprintf("contact email %s already in use; linked to existing company %q", email, owner.Name), nil
		}
	}

	// Recovery (b): regenerate the conflicting value and retry
	variants := emailVariants(email)
	for i := 0; i < conflictRecoveryAttempts && i < len(variants); i++ {
		company, err = a.attemptCreate(ctx, rec, name, externalID, variants[i])
		if err == nil {
			return company, fmt.Sprintf("contact email %s was taken; created with %s", email, variants[i]), nil
		}
		if !remote.IsConflict(err) {
			return nil, "", err
		}
	}

	return nil, "", fmt.Errorf("could not resolve contact email conflict for %q after %d attempts: %w", name, conflictRecoveryAttempts, err)
}

func (a *CompanyAdapter) attemptCreate(ctx context.Context, rec Record, name, externalID, email string) (*companyNode, error) {
	companyInput := map[string]any{"name": name}
	if externalID != "" {
		companyInput["externalId"] = externalID
	}

	input := map[string]any{
		"company": companyInput,
		"companyContact": map[string]any{
			"email":     email,
			"firstName": rec.Get("contact_first_name"),
			"lastName":  rec.Get("contact_last_name"),
		},
	}
	if rec.Has("location_name") {
		input["companyLocation"] = a.locationInput(rec)
	}

	var resp struct {
		CompanyCreate struct {
			Company    *companyNode       `json:"company"`
			UserErrors []remote.UserError `json:"userErrors"`
		} `json:"companyCreate"`
	}
	if err := a.api.Query(ctx, companyCreateMutation, map[string]any{"input": input}, &resp); err != nil {
		return nil, err
	}
	if err := remote.UserErrorsToValidation(resp.CompanyCreate.UserErrors); err != nil {
		return nil, err
	}
	if resp.CompanyCreate.Company == nil {
		return nil, fmt.Errorf("company create returned no company")
	}
	return resp.CompanyCreate.Company, nil
}

func (a *CompanyAdapter) locationInput(rec Record) map[string]any {
	loc := map[string]any{"name": rec.Get("location_name")}
	if rec.Has("location_external_id") {
		loc["externalId"] = rec.Get("location_external_id")
	}

	address := map[string]any{}
	for key, field := range map[string]string{
		"address1":    "address1",
		"address2":    "address2",
		"city":        "city",
		"zip":         "zip",
		"countryCode": "country_code",
		"phone":       "phone",
	} {
		if rec.Has(field) {
			address[key] = rec.Get(field)
		}
	}
	if len(address) > 0 {
		loc["shippingAddress"] = address
	}
	return loc
}

// ensureLocation attaches the record's location to an existing company,
// reusing a location that already matches on external id or name.
func (a *CompanyAdapter) ensureLocation(ctx context.Context, company *companyNode, rec Record) (string, error) {
	locName := rec.Get("location_name")
	locExternalID := rec.Get("location_external_id")

	for _, existing := range company.locationNodes() {
		if locExternalID != "" && existing.ExternalID == locExternalID {
			return existing.Name, nil
		}
		if strings.EqualFold(existing.Name, locName) {
			return existing.Name, nil
		}
	}

	var resp struct {
		CompanyLocationCreate struct {
			CompanyLocation *companyLocationNode `json:"companyLocation"`
			UserErrors      []remote.UserError   `json:"userErrors"`
		} `json:"companyLocationCreate"`
	}
	vars := map[string]any{"companyId": company.ID, "input": a.locationInput(rec)}
	if err := a.api.Query(ctx, companyLocationCreateMutation, vars, &resp); err != nil {
		return "", err
	}
	if err := remote.UserErrorsToValidation(resp.CompanyLocationCreate.UserErrors); err != nil {
		return "", err
	}
	if resp.CompanyLocationCreate.CompanyLocation == nil {
		return "", fmt.Errorf("location create returned no location")
	}

	created := resp.CompanyLocationCreate.CompanyLocation
	company.Locations.Edges = append(company.Locations.Edges, struct {
		Node companyLocationNode `json:"node"`
	}{Node: *created})
	return created.Name, nil
}

func (a *CompanyAdapter) mirror(ctx context.Context, rec Record, company *companyNode) error {
	locations := make([]map[string]string, 0, len(company.Locations.Edges))
	for _, loc := range company.locationNodes() {
		locations = append(locations, map[string]string{
			"id":          loc.ID,
			"name":        loc.Name,
			"external_id": loc.ExternalID,
		})
	}

	handle := docstore.Handle("company", firstNonEmpty(company.ExternalID, company.Name))
	fields := map[string]any{
		"name":          company.Name,
		"external_id":   company.ExternalID,
		"company_ref":   company.ID,
		"contact_email": rec.Get("contact_email", "email"),
		"locations":     locations,
		"synced_at":     time.Now().UTC(),
	}

	_, _, err := a.store.Upsert(ctx, CompanyDocType, handle, fields)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
