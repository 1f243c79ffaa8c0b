package adapter

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscountAdapter(api *fakeAPI) *DiscountAdapter {
	return NewDiscountAdapter(api, newTestStore(api), slog.Default())
}

func percentageRecord() Record {
	return Record{
		"discount_title": "Spring Sale",
		"discount_code":  "SPRING15",
		"discount_type":  "percentage",
		"discount_value": "15",
	}
}

const codeTakenResponse = `{"discountCreate":{"discount":null,"userErrors":[{"field":["code"],"message":"Code must be unique"}]}}`

func discountCreatedResponse(id, title, code string) string {
	return `{"discountCreate":{"discount":{"id":"` + id + `","title":"` + title + `","code":"` + code + `"},"userErrors":[]}}`
}

func TestNormalizeDiscount(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		check   func(t *testing.T, spec *discountSpec)
		wantErr string
	}{
		{
			name: "percentage value becomes a fraction",
			rec:  percentageRecord(),
			check: func(t *testing.T, spec *discountSpec) {
				assert.Equal(t, DiscountPercentage, spec.Type)
				assert.Equal(t, 0.15, spec.Fraction)
			},
		},
		{
			name: "amount is normalized to two decimals",
			rec: Record{
				"discount_title": "Ten Off",
				"discount_type":  "fixed_amount",
				"discount_value": "10.456",
			},
			check: func(t *testing.T, spec *discountSpec) {
				assert.Equal(t, DiscountFixedAmount, spec.Type)
				assert.Equal(t, "10.46", spec.Amount)
			},
		},
		{
			name: "code generated from title when missing",
			rec: Record{
				"discount_title": "Summer Sale 20%",
				"discount_type":  "percentage",
				"discount_value": "20",
			},
			check: func(t *testing.T, spec *discountSpec) {
				assert.Equal(t, "SUMMERSALE20", spec.Code)
			},
		},
		{
			name: "buy x get y with concrete targets",
			rec: Record{
				"discount_title": "BOGO Socks",
				"discount_type":  "bogo",
				"buy_quantity":   "2",
				"get_quantity":   "1",
				"applies_to":     "SKU-1, SKU-2",
			},
			check: func(t *testing.T, spec *discountSpec) {
				assert.Equal(t, DiscountBuyXGetY, spec.Type)
				assert.Equal(t, 2, spec.BuyQuantity)
				assert.Equal(t, 1, spec.GetQuantity)
				assert.Equal(t, []string{"SKU-1", "SKU-2"}, spec.Targets)
			},
		},
		{
			name: "buy x get y rejects apply to all",
			rec: Record{
				"discount_title": "BOGO Socks",
				"discount_type":  "buy_x_get_y",
				"buy_quantity":   "2",
				"get_quantity":   "1",
				"applies_to":     "all",
			},
			wantErr: "requires specific target",
		},
		{
			name: "buy x get y requires both quantities",
			rec: Record{
				"discount_title": "BOGO Socks",
				"discount_type":  "bogo",
				"buy_quantity":   "2",
				"applies_to":     "SKU-1",
			},
			wantErr: "positive get_quantity",
		},
		{
			name: "unknown type rejected",
			rec: Record{
				"discount_title": "Mystery",
				"discount_type":  "loyalty_points",
				"discount_value": "5",
			},
			wantErr: `unknown discount type "loyalty_points"`,
		},
		{
			name: "non-numeric percentage rejected",
			rec: Record{
				"discount_title": "Bad",
				"discount_type":  "percentage",
				"discount_value": "fifteen",
			},
			wantErr: "invalid percentage value",
		},
		{
			name:    "needs code or title",
			rec:     Record{"discount_type": "percentage", "discount_value": "10"},
			wantErr: "needs a code or a title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := normalizeDiscount(tt.rec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, spec)
		})
	}
}

func TestDiscountSync_PercentagePayloadIsFraction(t *testing.T) {
	api := newFakeAPI(t)
	api.onJSON("DiscountByCode", `{"discountByCode":null}`)
	api.onJSON("mutation DiscountCreate", discountCreatedResponse("gid://discount/1", "Spring Sale", "SPRING15"))

	outcome, err := newDiscountAdapter(api).Sync(context.Background(), percentageRecord())
	require.NoError(t, err)
	assert.True(t, outcome.Created)

	input := api.lastVars("mutation DiscountCreate")["input"].(map[string]any)
	assert.Equal(t, 0.15, input["percentage"], "percentage 15 goes on the wire as 0.15")
	assert.Equal(t, "SPRING15", input["code"])
}

func TestDiscountSync_ExistingCodeIsReused(t *testing.T) {
	api := newFakeAPI(t)
	api.onJSON("DiscountByCode", `{"discountByCode":{"id":"gid://discount/5","title":"Spring Sale","code":"SPRING15"}}`)

	outcome, err := newDiscountAdapter(api).Sync(context.Background(), percentageRecord())
	require.NoError(t, err)

	assert.False(t, outcome.Created)
	assert.Equal(t, "gid://discount/5", outcome.PrimaryKey)
	assert.Zero(t, api.callCount("mutation DiscountCreate"))
}

func TestDiscountSync_CodeConflictRelinksOnTitleMatch(t *testing.T) {
	api := newFakeAPI(t)

	lookups := 0
	api.on("DiscountByCode", func(map[string]any) (string, error) {
		lookups++
		if lookups == 1 {
			// Not visible on the first lookup; create then collides
			return `{"discountByCode":null}`, nil
		}
		return `{"discountByCode":{"id":"gid://discount/5","title":"Spring Sale","code":"SPRING15"}}`, nil
	})
	api.onJSON("mutation DiscountCreate", codeTakenResponse)

	outcome, err := newDiscountAdapter(api).Sync(context.Background(), percentageRecord())
	require.NoError(t, err)

	assert.False(t, outcome.Created)
	assert.Equal(t, "gid://discount/5", outcome.PrimaryKey)
	require.NotEmpty(t, outcome.Warnings)
	assert.Contains(t, outcome.Warnings[0], "linked to existing discount")
}

func TestDiscountSync_CodeConflictRegeneratesOtherwise(t *testing.T) {
	api := newFakeAPI(t)

	api.onJSON("DiscountByCode", `{"discountByCode":null}`)
	attempts := 0
	api.on("mutation DiscountCreate", func(vars map[string]any) (string, error) {
		attempts++
		if attempts == 1 {
			return codeTakenResponse, nil
		}
		code := vars["input"].(map[string]any)["code"].(string)
		return discountCreatedResponse("gid://discount/2", "Spring Sale", code), nil
	})

	outcome, err := newDiscountAdapter(api).Sync(context.Background(), percentageRecord())
	require.NoError(t, err)

	assert.True(t, outcome.Created)
	require.NotEmpty(t, outcome.Warnings)

	code := api.lastVars("mutation DiscountCreate")["input"].(map[string]any)["code"].(string)
	assert.NotEqual(t, "SPRING15", code)
	assert.True(t, strings.HasPrefix(code, "SPRING15"))
}

func TestDiscountSync_CodeConflictExhaustsAttempts(t *testing.T) {
	api := newFakeAPI(t)
	api.onJSON("DiscountByCode", `{"discountByCode":null}`)
	api.onJSON("mutation DiscountCreate", codeTakenResponse)

	_, err := newDiscountAdapter(api).Sync(context.Background(), percentageRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not resolve code conflict")
	assert.Equal(t, 1+conflictRecoveryAttempts, api.callCount("mutation DiscountCreate"))
}

func TestDiscountSync_BuyXGetYPayload(t *testing.T) {
	api := newFakeAPI(t)
	api.onJSON("DiscountByCode", `{"discountByCode":null}`)
	api.onJSON("mutation DiscountCreate", discountCreatedResponse("gid://discount/3", "BOGO Socks", "BOGOSOCKS"))

	rec := Record{
		"discount_title": "BOGO Socks",
		"discount_type":  "bogo",
		"buy_quantity":   "2",
		"get_quantity":   "1",
		"applies_to":     "SKU-1;SKU-2",
	}
	_, err := newDiscountAdapter(api).Sync(context.Background(), rec)
	require.NoError(t, err)

	input := api.lastVars("mutation DiscountCreate")["input"].(map[string]any)
	buys := input["customerBuys"].(map[string]any)
	gets := input["customerGets"].(map[string]any)
	assert.Equal(t, 2, buys["quantity"])
	assert.Equal(t, 1, gets["quantity"])
	assert.Equal(t, []string{"SKU-1", "SKU-2"}, buys["items"])
}
