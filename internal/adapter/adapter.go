// Package adapter contains the entity sync adapters. Each adapter maps one
// family of domain records onto the remote system's create/update
// operations, implements the lookup-before-create idempotency protocol, and
// mirrors synced records into the document store.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/bulk-sync/internal/docstore"
)

// Record is one parsed input row: loosely typed attributes keyed by the
// mapped field name. Empty values and missing keys are equivalent.
type Record map[string]string

// Get returns the first non-empty value among the given keys.
func (r Record) Get(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(r[key]); v != "" {
			return v
		}
	}
	return ""
}

// Has reports whether the record carries a non-empty value for the key.
func (r Record) Has(key string) bool {
	return strings.TrimSpace(r[key]) != ""
}

// Outcome is the result of syncing one record. Created reports whether the
// primary entity was created by this call (false when an existing entity
// was found and reused). Warnings surface as warning-status result entries.
type Outcome struct {
	Title      string
	PrimaryKey string
	Created    bool
	Detail     string
	Warnings   []string
}

// Syncer is the shared shape of every entity sync adapter.
type Syncer interface {
	// EntityType identifies the entity family ("companies", "collections",
	// "discounts").
	EntityType() string

	// GroupKey returns a key grouping records that must be processed
	// serially in input order (e.g. locations under one company). An empty
	// key means the record is independent.
	GroupKey(rec Record) string

	// Sync drives one record through lookup-or-create against the remote
	// system and mirrors the result into the document store.
	Sync(ctx context.Context, rec Record) (*Outcome, error)

	// Definition declares the document type this adapter mirrors into,
	// ensured once at boot.
	Definition() docstore.SchemaDefinition
}

// conflictRecoveryAttempts bounds how many regenerated values are tried
// when a create collides on a generated secondary attribute.
const conflictRecoveryAttempts = 3

// conflictVariants returns deterministic replacement values for a generated
// attribute that collided: timestamp suffix first, then a random suffix,
// then both. The caller tries them in order.
func conflictVariants(base string) []string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	rnd := uuid.NewString()[:8]
	return []string{
		base + "-" + ts,
		base + "-" + rnd,
		base + "-" + ts + "-" + rnd,
	}
}

// emailVariants applies conflictVariants to the local part of an email.
func emailVariants(email string) []string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return conflictVariants(email)
	}
	local, domain := email[:at], email[at:]
	variants := conflictVariants(local)
	for i, v := range variants {
		variants[i] = v + domain
	}
	return variants
}
