package syncer

import (
	"fmt"
	"strings"

	"github.com/cuongbtq/bulk-sync/internal/adapter"
)

// familySignatures lists the distinctive column names of each entity
// family. Shape validation uses them to catch a file submitted under the
// wrong entity type before any job is created.
var familySignatures = map[string][]string{
	"companies": {
		"company_name", "company_external_id",
		"location_name", "location_external_id",
		"contact_email", "contact_first_name",
	},
	"collections": {
		"collection_title", "collection_handle", "product_skus",
	},
	"discounts": {
		"discount_code", "discount_type", "discount_value",
		"buy_quantity", "get_quantity",
	},
}

// redirectThreshold is how many of another family's distinctive columns
// mark the input as belonging to that family.
const redirectThreshold = 2

func matchCount(keys map[string]bool, signature []string) int {
	n := 0
	for _, col := range signature {
		if keys[col] {
			n++
		}
	}
	return n
}

// ValidateShape checks the input's header set against the expected entity
// family. Input that matches a different known family's signature is
// rejected with a message naming the detected family, so a companies file
// never runs through the discounts adapter.
func ValidateShape(entityType string, records []adapter.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to process")
	}

	expected, ok := familySignatures[entityType]
	if !ok {
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	keys := make(map[string]bool, len(records[0]))
	for key := range records[0] {
		keys[strings.ToLower(strings.TrimSpace(key))] = true
	}

	own := matchCount(keys, expected)

	for family, signature := range familySignatures {
		if family == entityType {
			continue
		}
		if other := matchCount(keys, signature); other >= redirectThreshold && other > own {
			return fmt.Errorf("input looks like %s data (%d matching columns); start a %s sync instead", family, other, family)
		}
	}

	if own == 0 {
		return fmt.Errorf("records do not match the %s column signature (expected columns like %s)",
			entityType, strings.Join(expected[:3], ", "))
	}

	return nil
}
