package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sydlexius/confluence/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T { return &v }

func meta(source catalog.Provider) ClaimMetadata {
	return ClaimMetadata{Source: source, IngestEventID: "batch-1"}
}

// claim wraps e in a claim and adds it to g.
func claim(g *ClaimGraph, e catalog.Entity, source catalog.Provider) *EntityClaim {
	c := NewEntityClaim(e, meta(source))
	g.Add(c, false)
	return c
}

func link(t *testing.T, g *ClaimGraph, kind RelationshipKind, src, dst *EntityClaim, payload RelationshipPayload) *RelationshipClaim {
	t.Helper()
	rel := NewRelationshipClaim(kind, src.ID, dst.ID, ClaimMetadata{}, payload)
	require.NoError(t, g.AddRelationship(rel))
	return rel
}

func mustKeys(t *testing.T, g *ClaimGraph) KeysByClaim {
	t.Helper()
	keys, err := NewNormalizer(testLogger(), 0).Normalize(g)
	require.NoError(t, err)
	return keys
}

var errInjected = errors.New("injected failure")

// memStore is an in-memory canonical catalog. Units of work operate on a
// copy of its state that is swapped in on commit.
type memStore struct {
	state     memState
	commits   int
	rollbacks int
	// failAdd makes Add fail for entities of this type.
	failAdd catalog.EntityType
}

type memState struct {
	entities map[string][]byte
	types    map[string]catalog.EntityType
	external map[string]string
	sidecar  map[string]string
	merges   []catalog.EntityMerge
	reviews  []ReviewItem
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		entities: map[string][]byte{},
		types:    map[string]catalog.EntityType{},
		external: map[string]string{},
		sidecar:  map[string]string{},
	}}
}

func (s memState) clone() memState {
	return memState{
		entities: maps.Clone(s.entities),
		types:    maps.Clone(s.types),
		external: maps.Clone(s.external),
		sidecar:  maps.Clone(s.sidecar),
		merges:   slices.Clone(s.merges),
		reviews:  slices.Clone(s.reviews),
	}
}

func (s *memStore) Begin(context.Context) (UnitOfWork, error) {
	return &memUoW{store: s, state: s.state.clone()}, nil
}

// seed stores e directly, bypassing units of work.
func (s *memStore) seed(t *testing.T, e catalog.Entity, keys ...Key) {
	t.Helper()
	uow := &memUoW{store: s, state: s.state}
	require.NoError(t, uow.Add(context.Background(), e))
	require.NoError(t, uow.Save(context.Background(), e, keys))
	s.state = uow.state
}

func (s *memStore) get(t *testing.T, typ catalog.EntityType, id string) catalog.Entity {
	t.Helper()
	uow := &memUoW{store: s, state: s.state}
	e, err := uow.Get(context.Background(), typ, id)
	require.NoError(t, err)
	return e
}

func (s *memStore) count(typ catalog.EntityType) int {
	n := 0
	for _, t := range s.state.types {
		if t == typ {
			n++
		}
	}
	return n
}

type memUoW struct {
	store *memStore
	state memState
}

func (u *memUoW) Entities() EntityRepository { return u }
func (u *memUoW) Sidecar() SidecarRepository { return u }
func (u *memUoW) Audit() AuditRepository     { return u }

func (u *memUoW) Commit() error {
	u.store.state = u.state
	u.store.commits++
	return nil
}

func (u *memUoW) Rollback() error {
	u.store.rollbacks++
	return nil
}

func (u *memUoW) put(e catalog.Entity) error {
	for _, ext := range e.Base().ExternalIDs {
		k := string(ext.Namespace) + "|" + ext.Value
		if owner, ok := u.state.external[k]; ok && owner != e.Base().ID {
			return errors.New("external id already owned: " + k)
		}
		u.state.external[k] = e.Base().ID
	}
	data, err := catalog.Marshal(e)
	if err != nil {
		return err
	}
	u.state.entities[e.Base().ID] = data
	u.state.types[e.Base().ID] = e.EntityType()
	return nil
}

func (u *memUoW) Add(_ context.Context, e catalog.Entity) error {
	if e.EntityType() == u.store.failAdd {
		return errInjected
	}
	return u.put(e)
}

func (u *memUoW) Update(_ context.Context, e catalog.Entity) error {
	return u.put(e)
}

func (u *memUoW) Get(_ context.Context, t catalog.EntityType, id string) (catalog.Entity, error) {
	data, ok := u.state.entities[id]
	if !ok || u.state.types[id] != t {
		return nil, nil
	}
	return catalog.Unmarshal(t, data)
}

func (u *memUoW) GetByExternalID(ctx context.Context, ns catalog.Namespace, value string) (catalog.Entity, error) {
	id, ok := u.state.external[string(ns)+"|"+value]
	if !ok {
		return nil, nil
	}
	return u.Get(ctx, u.state.types[id], id)
}

func (u *memUoW) Save(_ context.Context, e catalog.Entity, keys []Key) error {
	for _, k := range keys {
		sk := string(e.EntityType()) + "|" + k.String()
		if _, taken := u.state.sidecar[sk]; !taken {
			u.state.sidecar[sk] = e.Base().ID
		}
	}
	return nil
}

func (u *memUoW) FindByKeys(ctx context.Context, t catalog.EntityType, keys []Key) (map[string]catalog.Entity, error) {
	out := make(map[string]catalog.Entity)
	for _, k := range keys {
		id, ok := u.state.sidecar[string(t)+"|"+k.String()]
		if !ok {
			continue
		}
		e, err := u.Get(ctx, t, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out[k.String()] = e
		}
	}
	return out, nil
}

func (u *memUoW) SaveMerge(_ context.Context, m catalog.EntityMerge) error {
	u.state.merges = append(u.state.merges, m)
	return nil
}

func (u *memUoW) SaveReview(_ context.Context, item ReviewItem) error {
	u.state.reviews = append(u.state.reviews, item)
	return nil
}
