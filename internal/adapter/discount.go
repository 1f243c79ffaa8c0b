package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/bulk-sync/internal/docstore"
	"github.com/cuongbtq/bulk-sync/internal/remote"
)

// DiscountDocType is the document type discount records mirror into.
const DiscountDocType = "discount_record"

// Discount variants understood by the adapter.
const (
	DiscountPercentage  = "percentage"
	DiscountFixedAmount = "fixed_amount"
	DiscountBuyXGetY    = "buy_x_get_y"
)

// DiscountAdapter syncs promotions. Codes are the idempotency key; a code
// collision on create triggers the shared conflict recovery protocol.
type DiscountAdapter struct {
	api    remote.API
	store  *docstore.Store
	logger *slog.Logger
}

// NewDiscountAdapter creates the discounts sync adapter.
func NewDiscountAdapter(api remote.API, store *docstore.Store, logger *slog.Logger) *DiscountAdapter {
	return &DiscountAdapter{api: api, store: store, logger: logger}
}

func (a *DiscountAdapter) EntityType() string { return "discounts" }

// GroupKey returns "" because discounts have no ordering dependency.
func (a *DiscountAdapter) GroupKey(Record) string { return "" }

func (a *DiscountAdapter) Definition() docstore.SchemaDefinition {
	return docstore.SchemaDefinition{
		Type: DiscountDocType,
		Name: "Discount Record",
		Fields: []docstore.SchemaField{
			{Key: "code", Name: "Code", Type: docstore.FieldText, Required: true},
			{Key: "title", Name: "Title", Type: docstore.FieldText},
			{Key: "discount_type", Name: "Discount Type", Type: docstore.FieldText},
			{Key: "value", Name: "Value", Type: docstore.FieldDecimal},
			{Key: "discount_ref", Name: "Discount Reference", Type: docstore.FieldReference},
			{Key: "applies_to", Name: "Applies To", Type: docstore.FieldJSON},
			{Key: "starts_at", Name: "Starts At", Type: docstore.FieldDatetime},
			{Key: "ends_at", Name: "Ends At", Type: docstore.FieldDatetime},
			{Key: "synced_at", Name: "Synced At", Type: docstore.FieldDatetime},
		},
	}
}

// discountSpec is the validated, normalized form of one discount record.
type discountSpec struct {
	Title       string
	Code        string
	Type        string
	Fraction    float64 // percentage as a fraction, e.g. 15 -> 0.15
	Amount      string  // monetary amount with two decimal places
	BuyQuantity int
	GetQuantity int
	Targets     []string
	StartsAt    string
	EndsAt      string
}

// normalizeDiscount validates the record and applies the numeric semantics:
// percentages become fractions, amounts are normalized to two decimals, and
// "buy X get Y" needs both quantities plus at least one concrete target.
func normalizeDiscount(rec Record) (*discountSpec, error) {
	title := rec.Get("discount_title", "title")
	code := rec.Get("discount_code", "code")
	if title == "" && code == "" {
		return nil, fmt.Errorf("discount needs a code or a title")
	}
	if code == "" {
		code = generateDiscountCode(title)
	}
	if title == "" {
		title = code
	}

	spec := &discountSpec{
		Title:    title,
		Code:     code,
		StartsAt: rec.Get("starts_at", "start_date"),
		EndsAt:   rec.Get("ends_at", "end_date"),
	}

	rawType := strings.ToLower(rec.Get("discount_type", "type"))
	switch rawType {
	case "percentage", "percent", "%":
		spec.Type = DiscountPercentage
	case "fixed", "fixed_amount", "amount":
		spec.Type = DiscountFixedAmount
	case "bogo", "bxgy", "buy_x_get_y", "buy x get y":
		spec.Type = DiscountBuyXGetY
	default:
		return nil, fmt.Errorf("unknown discount type %q", rec.Get("discount_type", "type"))
	}

	switch spec.Type {
	case DiscountPercentage:
		value, err := strconv.ParseFloat(rec.Get("discount_value", "value"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percentage value %q", rec.Get("discount_value", "value"))
		}
		spec.Fraction = value / 100

	case DiscountFixedAmount:
		value, err := strconv.ParseFloat(rec.Get("discount_value", "value"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q", rec.Get("discount_value", "value"))
		}
		spec.Amount = strconv.FormatFloat(math.Round(value*100)/100, 'f', 2, 64)

	case DiscountBuyXGetY:
		buyQty, err := strconv.Atoi(rec.Get("buy_quantity"))
		if err != nil || buyQty <= 0 {
			return nil, fmt.Errorf("buy X get Y discount requires a positive buy_quantity")
		}
		getQty, err := strconv.Atoi(rec.Get("get_quantity"))
		if err != nil || getQty <= 0 {
			return nil, fmt.Errorf("buy X get Y discount requires a positive get_quantity")
		}
		spec.BuyQuantity = buyQty
		spec.GetQuantity = getQty

		appliesTo := rec.Get("applies_to", "target_skus", "target_collections")
		if appliesTo == "" || strings.EqualFold(appliesTo, "all") {
			return nil, fmt.Errorf("buy X get Y discount requires specific target items or collections, not %q", firstNonEmpty(appliesTo, "empty"))
		}
		spec.Targets = splitList(appliesTo)
		if len(spec.Targets) == 0 {
			return nil, fmt.Errorf("buy X get Y discount requires at least one target")
		}
	}

	if spec.Type != DiscountBuyXGetY {
		if appliesTo := rec.Get("applies_to", "target_skus"); appliesTo != "" && !strings.EqualFold(appliesTo, "all") {
			spec.Targets = splitList(appliesTo)
		}
	}

	return spec, nil
}

// generateDiscountCode derives a code from the title: upper-cased
// alphanumerics only.
func generateDiscountCode(title string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(title) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type discountNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Code  string `json:"code"`
}

const discountByCodeQuery = `
query DiscountByCode($code: String!) {
  discountByCode(code: $code) {
    id
    title
    code
  }
}`

const discountCreateMutation = `
mutation DiscountCreate($input: DiscountCreateInput!) {
  discountCreate(input: $input) {
    discount {
      id
      title
      code
    }
    userErrors {
      field
      message
    }
  }
}`

// Sync upserts one discount by code. An existing discount with the same
// code is reused, never duplicated.
func (a *DiscountAdapter) Sync(ctx context.Context, rec Record) (*Outcome, error) {
	spec, err := normalizeDiscount(rec)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Title: spec.Title}

	existing, err := a.findByCode(ctx, spec.Code)
	if err != nil {
		return nil, err
	}

	var discount *discountNode
	if existing != nil {
		discount = existing
		outcome.Detail = fmt.Sprintf("reused existing discount with code %s", spec.Code)
	} else {
		var created bool
		var warning string
		discount, created, warning, err = a.createDiscount(ctx, spec)
		if err != nil {
			return nil, err
		}
		outcome.Created = created
		if warning != "" {
			outcome.Warnings = append(outcome.Warnings, warning)
		}
		if created && warning == "" {
			outcome.Detail = fmt.Sprintf("created with code %s", discount.Code)
		}
	}
	outcome.PrimaryKey = discount.ID

	if err := a.mirror(ctx, spec, discount); err != nil {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("synced remotely but document mirror failed: %v", err))
	}

	return outcome, nil
}

func (a *DiscountAdapter) findByCode(ctx context.Context, code string) (*discountNode, error) {
	var resp struct {
		DiscountByCode *discountNode `json:"discountByCode"`
	}
	if err := a.api.Query(ctx, discountByCodeQuery, map[string]any{"code": code}, &resp); err != nil {
		return nil, fmt.Errorf("discount lookup: %w", err)
	}
	return resp.DiscountByCode, nil
}

// createDiscount attempts creation, recovering from a code uniqueness
// conflict: relink when the conflicting discount matches on title,
// otherwise regenerate the code and retry a bounded number of times. The
// bool reports whether a new discount was created (false on relink).
func (a *DiscountAdapter) createDiscount(ctx context.Context, spec *discountSpec) (*discountNode, bool, string, error) {
	discount, err := a.attemptCreate(ctx, spec, spec.Code)
	if err == nil {
		return discount, true, "", nil
	}
	if !remote.IsConflict(err) {
		return nil, false, "", err
	}

	// Recovery (a): another discount owns the code; relink only on a title
	// match
	owner, lookupErr := a.findByCode(ctx, spec.Code)
	if lookupErr == nil && owner != nil && strings.EqualFold(owner.Title, spec.Title) {
		return owner, false, fmt.Sprintf("code %s already in use; linked to existing discount %q", spec.Code, owner.Title), nil
	}

	// Recovery (b): regenerate the code and retry
	variants := conflictVariants(spec.Code)
	for i := 0; i < conflictRecoveryAttempts && i < len(variants); i++ {
		code := strings.ToUpper(strings.ReplaceAll(variants[i], "-", ""))
		discount, err = a.attemptCreate(ctx, spec, code)
		if err == nil {
			spec.Code = code
			return discount, true, fmt.Sprintf("code was taken; created with %s instead", code), nil
		}
		if !remote.IsConflict(err) {
			return nil, false, "", err
		}
	}

	return nil, false, "", fmt.Errorf("could not resolve code conflict for %q after %d attempts: %w", spec.Title, conflictRecoveryAttempts, err)
}

func (a *DiscountAdapter) attemptCreate(ctx context.Context, spec *discountSpec, code string) (*discountNode, error) {
	input := map[string]any{
		"title": spec.Title,
		"code":  code,
		"type":  spec.Type,
	}

	switch spec.Type {
	case DiscountPercentage:
		input["percentage"] = spec.Fraction
	case DiscountFixedAmount:
		input["amount"] = spec.Amount
	case DiscountBuyXGetY:
		input["customerBuys"] = map[string]any{
			"quantity": spec.BuyQuantity,
			"items":    spec.Targets,
		}
		input["customerGets"] = map[string]any{
			"quantity": spec.GetQuantity,
			"items":    spec.Targets,
		}
	}
	if len(spec.Targets) > 0 && spec.Type != DiscountBuyXGetY {
		input["appliesTo"] = spec.Targets
	}
	if spec.StartsAt != "" {
		input["startsAt"] = spec.StartsAt
	}
	if spec.EndsAt != "" {
		input["endsAt"] = spec.EndsAt
	}

	var resp struct {
		DiscountCreate struct {
			Discount   *discountNode      `json:"discount"`
			UserErrors []remote.UserError `json:"userErrors"`
		} `json:"discountCreate"`
	}
	if err := a.api.Query(ctx, discountCreateMutation, map[string]any{"input": input}, &resp); err != nil {
		return nil, err
	}
	if err := remote.UserErrorsToValidation(resp.DiscountCreate.UserErrors); err != nil {
		return nil, err
	}
	if resp.DiscountCreate.Discount == nil {
		return nil, fmt.Errorf("discount create returned no discount")
	}
	return resp.DiscountCreate.Discount, nil
}

func (a *DiscountAdapter) mirror(ctx context.Context, spec *discountSpec, discount *discountNode) error {
	var value any
	switch spec.Type {
	case DiscountPercentage:
		value = spec.Fraction
	case DiscountFixedAmount:
		value = spec.Amount
	default:
		value = nil
	}

	fields := map[string]any{
		"code":          spec.Code,
		"title":         spec.Title,
		"discount_type": spec.Type,
		"value":         value,
		"discount_ref":  discount.ID,
		"applies_to":    spec.Targets,
		"synced_at":     time.Now().UTC(),
	}
	if spec.StartsAt != "" {
		fields["starts_at"] = spec.StartsAt
	}
	if spec.EndsAt != "" {
		fields["ends_at"] = spec.EndsAt
	}

	_, _, err := a.store.Upsert(ctx, DiscountDocType, docstore.Handle("discount", spec.Code), fields)
	return err
}
