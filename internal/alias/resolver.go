// Package alias assigns one stable internal chat key per logical chat, no
// matter which identifier form (jid, lid, bare waid) ingestion observed
// first, and repairs keys that were split before the evidence arrived.
package alias

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/repository"
	"github.com/werpoz/chatrelay/internal/util"
)

// Classify maps an identifier to its alias type by suffix.
func Classify(alias string) model.AliasType {
	switch {
	case strings.HasSuffix(alias, "@lid"):
		return model.AliasLID
	case strings.HasSuffix(alias, "@s.whatsapp.net"),
		strings.HasSuffix(alias, "@g.us"),
		strings.HasSuffix(alias, "@broadcast"):
		return model.AliasJID
	default:
		return model.AliasWAID
	}
}

// Resolver resolves raw chat identifiers to chat keys, minting keys for
// first sightings. Every chat-scoped write goes through it.
type Resolver struct {
	repo repository.ChatAliasRepository
}

func NewResolver(repo repository.ChatAliasRepository) *Resolver {
	return &Resolver{repo: repo}
}

// EnsureAliases deduplicates the input, resolves known aliases in one batch,
// mints a key for each miss and upserts the new mappings before returning the
// combined alias→chatKey map. Concurrent callers racing on the same alias are
// reconciled by the final re-resolve: whoever lost the unique-key race picks
// up the winner's key.
func (r *Resolver) EnsureAliases(ctx context.Context, sessionID, tenantID string, aliases []string) (map[string]string, error) {
	deduped := make([]string, 0, len(aliases))
	seen := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		a = util.NormalizeIdentifier(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		deduped = append(deduped, a)
	}
	if len(deduped) == 0 {
		return map[string]string{}, nil
	}

	known, err := r.repo.ResolveBatch(ctx, sessionID, deduped)
	if err != nil {
		return nil, fmt.Errorf("resolve aliases: %w", err)
	}

	var fresh []model.ChatAliasRecord
	for _, a := range deduped {
		if _, ok := known[a]; ok {
			continue
		}
		fresh = append(fresh, model.ChatAliasRecord{
			ID:        util.NewID(),
			TenantID:  tenantID,
			SessionID: sessionID,
			ChatKey:   uuid.NewString(),
			Alias:     a,
			AliasType: Classify(a),
		})
	}
	if len(fresh) == 0 {
		return known, nil
	}

	if err := r.repo.UpsertBatch(ctx, fresh); err != nil {
		return nil, fmt.Errorf("upsert aliases: %w", err)
	}

	// Re-resolve everything: this returns the stored key even where a
	// concurrent writer created the mapping first.
	final, err := r.repo.ResolveBatch(ctx, sessionID, deduped)
	if err != nil {
		return nil, fmt.Errorf("re-resolve aliases: %w", err)
	}
	return final, nil
}
