package alias

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/repository"
	"github.com/werpoz/chatrelay/internal/util"
)

// RepairStats summarizes one repair pass.
type RepairStats struct {
	Merged  int // lid-keyed data rewritten under the jid key
	Created int // missing aliases filled in from contact links
	Skipped int // pairs already consistent or unresolvable
}

// Repair is the best-effort reconciliation pass over persisted alias records.
// It merges chat keys that were split across identifier forms, using two
// evidence sources: jid/lid aliases created at the same moment, and contact
// records linking both identifiers. It is idempotent and safe to run
// alongside live ingestion; races are resolved by re-running.
type Repair struct {
	aliases  repository.ChatAliasRepository
	contacts repository.ContactsRepository
}

func NewRepair(aliases repository.ChatAliasRepository, contacts repository.ContactsRepository) *Repair {
	return &Repair{aliases: aliases, contacts: contacts}
}

// Run executes one repair pass for the session. The jid-originated key is
// canonical: lid-keyed rows merge into it, never the other way around. Keys
// are never invented across sessions.
func (r *Repair) Run(ctx context.Context, sessionID string) (RepairStats, error) {
	var stats RepairStats

	pairs, err := r.aliases.FindCorrelatedPairs(ctx, sessionID)
	if err != nil {
		return stats, fmt.Errorf("find correlated pairs: %w", err)
	}
	for _, p := range pairs {
		if p.JID.ChatKey == p.LID.ChatKey {
			stats.Skipped++
			continue
		}
		if err := r.aliases.MergeKeys(ctx, sessionID, p.LID.ChatKey, p.JID.ChatKey); err != nil {
			return stats, fmt.Errorf("merge %s into %s: %w", p.LID.ChatKey, p.JID.ChatKey, err)
		}
		stats.Merged++
		logger.L().Info("merged correlated chat keys",
			zap.String("session_id", sessionID),
			zap.String("jid_alias", p.JID.Alias),
			zap.String("lid_alias", p.LID.Alias),
			zap.String("winner", p.JID.ChatKey))
	}

	if r.contacts != nil {
		contactStats, err := r.repairFromContacts(ctx, sessionID)
		if err != nil {
			return stats, err
		}
		stats.Merged += contactStats.Merged
		stats.Created += contactStats.Created
		stats.Skipped += contactStats.Skipped
	}

	return stats, nil
}

// repairFromContacts walks jid/lid links learned from contact syncs. When
// both sides resolve to different keys the lid side merges into the jid key;
// when only one side has a record the missing alias is created under the
// existing key; when neither resolves nothing happens.
func (r *Repair) repairFromContacts(ctx context.Context, sessionID string) (RepairStats, error) {
	var stats RepairStats

	links, err := r.contacts.ListLinked(ctx, sessionID)
	if err != nil {
		return stats, fmt.Errorf("list contact links: %w", err)
	}

	for _, link := range links {
		jidRec, err := r.aliases.GetByAlias(ctx, sessionID, link.JID)
		if err != nil {
			return stats, err
		}
		lidRec, err := r.aliases.GetByAlias(ctx, sessionID, link.LID)
		if err != nil {
			return stats, err
		}

		switch {
		case jidRec != nil && lidRec != nil:
			if jidRec.ChatKey == lidRec.ChatKey {
				stats.Skipped++
				continue
			}
			if err := r.aliases.MergeKeys(ctx, sessionID, lidRec.ChatKey, jidRec.ChatKey); err != nil {
				return stats, fmt.Errorf("merge linked keys: %w", err)
			}
			stats.Merged++

		case jidRec != nil:
			if err := r.createAlias(ctx, *jidRec, link.LID, model.AliasLID); err != nil {
				return stats, err
			}
			stats.Created++

		case lidRec != nil:
			if err := r.createAlias(ctx, *lidRec, link.JID, model.AliasJID); err != nil {
				return stats, err
			}
			stats.Created++

		default:
			// neither side resolvable: never invent a key here
			stats.Skipped++
		}
	}
	return stats, nil
}

func (r *Repair) createAlias(ctx context.Context, existing model.ChatAliasRecord, alias string, typ model.AliasType) error {
	rec := model.ChatAliasRecord{
		ID:        util.NewID(),
		TenantID:  existing.TenantID,
		SessionID: existing.SessionID,
		ChatKey:   existing.ChatKey,
		Alias:     alias,
		AliasType: typ,
	}
	if err := r.aliases.UpsertBatch(ctx, []model.ChatAliasRecord{rec}); err != nil {
		return fmt.Errorf("create alias %s: %w", alias, err)
	}
	return nil
}
