package alias

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/repository"
)

// fakeAliasRepo is an in-memory ChatAliasRepository keyed by
// sessionID + "|" + alias, mirroring the unique key of the real table.
type fakeAliasRepo struct {
	mu      sync.Mutex
	records map[string]model.ChatAliasRecord
	// messageKeys tracks chat_key per message row id so MergeKeys rewrites
	// can be observed in tests.
	messageKeys map[string]string
}

func newFakeAliasRepo() *fakeAliasRepo {
	return &fakeAliasRepo{
		records:     make(map[string]model.ChatAliasRecord),
		messageKeys: make(map[string]string),
	}
}

func (f *fakeAliasRepo) key(sessionID, alias string) string { return sessionID + "|" + alias }

func (f *fakeAliasRepo) ResolveBatch(_ context.Context, sessionID string, aliases []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for _, a := range aliases {
		if rec, ok := f.records[f.key(sessionID, a)]; ok {
			out[a] = rec.ChatKey
		}
	}
	return out, nil
}

func (f *fakeAliasRepo) UpsertBatch(_ context.Context, records []model.ChatAliasRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range records {
		k := f.key(rec.SessionID, rec.Alias)
		if _, exists := f.records[k]; exists {
			// first writer wins, matching ON DUPLICATE KEY UPDATE updated_at
			continue
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		f.records[k] = rec
	}
	return nil
}

func (f *fakeAliasRepo) MergeKeys(_ context.Context, sessionID, fromKey, toKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, rec := range f.records {
		if rec.SessionID == sessionID && rec.ChatKey == fromKey {
			rec.ChatKey = toKey
			f.records[k] = rec
		}
	}
	for id, key := range f.messageKeys {
		if key == fromKey {
			f.messageKeys[id] = toKey
		}
	}
	return nil
}

func (f *fakeAliasRepo) FindCorrelatedPairs(_ context.Context, sessionID string) ([]repository.AliasPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.AliasPair
	for _, a := range f.records {
		if a.SessionID != sessionID || a.AliasType != model.AliasJID {
			continue
		}
		for _, b := range f.records {
			if b.SessionID != sessionID || b.AliasType != model.AliasLID {
				continue
			}
			if b.ChatKey == a.ChatKey {
				continue
			}
			if a.CreatedAt.Unix() != b.CreatedAt.Unix() {
				continue
			}
			out = append(out, repository.AliasPair{JID: a, LID: b})
		}
	}
	return out, nil
}

func (f *fakeAliasRepo) GetByAlias(_ context.Context, sessionID, alias string) (*model.ChatAliasRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[f.key(sessionID, alias)]; ok {
		cp := rec
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeAliasRepo) seed(rec model.ChatAliasRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[f.key(rec.SessionID, rec.Alias)] = rec
}

func TestClassify(t *testing.T) {
	assert.Equal(t, model.AliasLID, Classify("44@lid"))
	assert.Equal(t, model.AliasJID, Classify("20@s.whatsapp.net"))
	assert.Equal(t, model.AliasJID, Classify("123-456@g.us"))
	assert.Equal(t, model.AliasJID, Classify("status@broadcast"))
	assert.Equal(t, model.AliasWAID, Classify("4915112345678"))
	assert.Equal(t, model.AliasWAID, Classify("odd@elsewhere"))
}

func TestEnsureAliasesMintsKeyOnce(t *testing.T) {
	repo := newFakeAliasRepo()
	r := NewResolver(repo)
	ctx := context.Background()

	first, err := r.EnsureAliases(ctx, "s1", "t1", []string{"44@lid"})
	require.NoError(t, err)
	key := first["44@lid"]
	require.NotEmpty(t, key)

	// same alias again resolves to the same key, no new mint
	second, err := r.EnsureAliases(ctx, "s1", "t1", []string{"44@lid"})
	require.NoError(t, err)
	assert.Equal(t, key, second["44@lid"])
}

func TestEnsureAliasesNormalizesAndDedupes(t *testing.T) {
	repo := newFakeAliasRepo()
	r := NewResolver(repo)
	ctx := context.Background()

	got, err := r.EnsureAliases(ctx, "s1", "t1", []string{
		"20:5@S.WhatsApp.Net",
		"20@s.whatsapp.net",
		"",
	})
	require.NoError(t, err)
	require.Len(t, got, 1, "device variants collapse to one alias")
	assert.NotEmpty(t, got["20@s.whatsapp.net"])

	rec, err := repo.GetByAlias(ctx, "s1", "20@s.whatsapp.net")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.AliasJID, rec.AliasType)
	assert.Equal(t, "t1", rec.TenantID)
}

func TestEnsureAliasesSessionScoped(t *testing.T) {
	repo := newFakeAliasRepo()
	r := NewResolver(repo)
	ctx := context.Background()

	a, err := r.EnsureAliases(ctx, "s1", "t1", []string{"44@lid"})
	require.NoError(t, err)
	b, err := r.EnsureAliases(ctx, "s2", "t1", []string{"44@lid"})
	require.NoError(t, err)

	assert.NotEqual(t, a["44@lid"], b["44@lid"], "sessions never share keys")
}

func TestEnsureAliasesLosesRaceGracefully(t *testing.T) {
	repo := newFakeAliasRepo()
	r := NewResolver(repo)
	ctx := context.Background()

	// a concurrent writer stored the mapping between our resolve and upsert;
	// the first-writer-wins upsert plus re-resolve must surface their key.
	repo.seed(model.ChatAliasRecord{
		ID: "pre", TenantID: "t1", SessionID: "s1",
		ChatKey: "winner-key", Alias: "44@lid", AliasType: model.AliasLID,
		CreatedAt: time.Now(),
	})

	got, err := r.EnsureAliases(ctx, "s1", "t1", []string{"44@lid"})
	require.NoError(t, err)
	assert.Equal(t, "winner-key", got["44@lid"])
}

func TestEnsureAliasesEmptyInput(t *testing.T) {
	r := NewResolver(newFakeAliasRepo())
	got, err := r.EnsureAliases(context.Background(), "s1", "t1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
