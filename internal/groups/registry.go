package groups

import (
	"context"
	"sort"
	"strings"
	"sync"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/errors"
	"github.com/verse-pbc/groups-relay/internal/logger"
	"github.com/verse-pbc/groups-relay/internal/metrics"
	"go.uber.org/zap"
)

type scopedID struct {
	scope Scope
	id    string
}

// groupHandle pairs a group with its own lock so contention stays per-group.
type groupHandle struct {
	mu    sync.RWMutex
	group *Group
}

// Registry owns every managed group, partitioned by scope. The outer map is
// guarded by a registry-level lock; each group carries its own read/write
// lock. No operation holds more than one group lock at a time.
type Registry struct {
	mu     sync.RWMutex
	groups map[scopedID]*groupHandle

	store       EventStore
	relayPubkey string
	log         *zap.Logger
}

// NewRegistry builds an empty registry. Call LoadAll to replay stored state.
func NewRegistry(store EventStore, relayPubkey string) *Registry {
	return &Registry{
		groups:      make(map[scopedID]*groupHandle),
		store:       store,
		relayPubkey: relayPubkey,
		log:         logger.New("groups"),
	}
}

// RelayPubkey returns the relay identity treated as universal admin.
func (r *Registry) RelayPubkey() string { return r.relayPubkey }

func (r *Registry) handle(scope Scope, id string) *groupHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[scopedID{scope: scope, id: id}]
}

// Has reports whether (scope, id) names a managed group.
func (r *Registry) Has(scope Scope, id string) bool {
	return r.handle(scope, id) != nil
}

// View runs fn under the group's read lock. Returns false when the group
// does not exist.
func (r *Registry) View(scope Scope, id string, fn func(g *Group)) bool {
	h := r.handle(scope, id)
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn(h.group)
	return true
}

// Update runs fn under the group's write lock. Returns false when the group
// does not exist; fn's error is passed through.
func (r *Registry) Update(scope Scope, id string, fn func(g *Group) error) (bool, error) {
	h := r.handle(scope, id)
	if h == nil {
		return false, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return true, fn(h.group)
}

// ViewFromEvent resolves the group an event targets (d tag for addressable
// kinds, h tag otherwise) and runs fn under its read lock.
func (r *Registry) ViewFromEvent(evt *nostr.Event, scope Scope, fn func(g *Group)) bool {
	id := GroupIDFromEvent(evt)
	if id == "" {
		return false
	}
	return r.View(scope, id, fn)
}

// UpdateFromEvent resolves the group an event targets and runs fn under its
// write lock. Unless the submitter is the relay identity or the event is a
// leave request, member access is verified before fn runs.
func (r *Registry) UpdateFromEvent(evt *nostr.Event, scope Scope, fn func(g *Group) error) (bool, error) {
	id := GroupIDFromEvent(evt)
	if id == "" {
		return false, nil
	}
	h := r.handle(scope, id)
	if h == nil {
		return false, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if strings.ToLower(evt.PubKey) != r.relayPubkey && evt.Kind != KindLeaveRequest {
		if err := h.group.VerifyMemberAccess(strings.ToLower(evt.PubKey), evt.Kind); err != nil {
			return true, err
		}
	}
	return true, fn(h.group)
}

// CreateGroup handles a kind-9007 event: it validates the creation rule
// against stored history, registers the group and emits the canonical
// command batch.
func (r *Registry) CreateGroup(ctx context.Context, evt *nostr.Event, scope Scope) ([]StoreCommand, error) {
	id := GroupIDFromEvent(evt)
	if id == "" {
		return nil, errors.Invalid("group events must contain an 'h' tag")
	}

	if r.Has(scope, id) {
		return nil, errors.Notice("Group already exists")
	}

	// A deleted group id stays burned within its scope.
	deleted, err := r.store.QueryEvents(ctx, nostr.Filter{
		Kinds: []int{KindDeleteGroup},
		Tags:  nostr.TagMap{"h": []string{id}},
	}, scope)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if len(deleted) > 0 {
		return nil, errors.Notice("Group existed before and was deleted")
	}

	previous, err := r.store.QueryEvents(ctx, nostr.Filter{
		Tags: nostr.TagMap{"h": []string{id}},
	}, scope)
	if err != nil {
		return nil, errors.Internal(err)
	}

	if len(previous) > 0 && strings.ToLower(evt.PubKey) != r.relayPubkey {
		return nil, errors.Notice("Only relay admin can create a managed group from an unmanaged one")
	}

	g, err := NewGroup(evt)
	if err != nil {
		return nil, err
	}

	// Everyone who posted to the unmanaged corpus becomes a member.
	participants := make(map[string]struct{})
	for _, prev := range previous {
		if IsGroupRelatedKind(prev.Kind) {
			continue
		}
		participants[strings.ToLower(prev.PubKey)] = struct{}{}
	}
	for pk := range participants {
		if pk == strings.ToLower(evt.PubKey) {
			continue
		}
		if err := g.AddPubkey(pk); err != nil {
			return nil, err
		}
	}

	key := scopedID{scope: scope, id: id}
	r.mu.Lock()
	if _, exists := r.groups[key]; exists {
		r.mu.Unlock()
		return nil, errors.Notice("Group already exists")
	}
	r.groups[key] = &groupHandle{group: g}
	r.mu.Unlock()

	metrics.GroupsCreated.Inc()
	r.log.Info("Group created",
		zap.String("group", id),
		zap.String("scope", scope.String()),
		zap.String("creator", evt.PubKey))

	creator := g.Members[strings.ToLower(evt.PubKey)]
	return []StoreCommand{
		SaveSignedEvent{Event: evt, Scope: scope},
		SaveUnsignedEvent{Event: g.MetadataEvent(r.relayPubkey), Scope: scope},
		SaveUnsignedEvent{Event: g.PutUserEvent(creator, r.relayPubkey), Scope: scope},
		SaveUnsignedEvent{Event: g.AdminsEvent(r.relayPubkey), Scope: scope},
		SaveUnsignedEvent{Event: g.MembersEvent(r.relayPubkey), Scope: scope},
		SaveUnsignedEvent{Event: g.RolesEvent(r.relayPubkey), Scope: scope},
	}, nil
}

// DeleteGroup handles a kind-9008 event. Authorization is evaluated under
// the group's write lock against the then-current role set; on success the
// registry entry is removed.
func (r *Registry) DeleteGroup(evt *nostr.Event, scope Scope, authedPubkey string) ([]StoreCommand, error) {
	id := GroupIDFromEvent(evt)
	if id == "" {
		return nil, errors.Invalid("group events must contain an 'h' tag")
	}
	h := r.handle(scope, id)
	if h == nil {
		return nil, errors.Notice("Group not found")
	}

	h.mu.Lock()
	commands, err := h.group.DeleteGroupRequest(evt, scope, r.relayPubkey, authedPubkey)
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	delete(r.groups, scopedID{scope: scope, id: id})
	r.mu.Unlock()

	metrics.GroupsDeleted.Inc()
	r.log.Info("Group deleted",
		zap.String("group", id),
		zap.String("scope", scope.String()))

	return commands, nil
}

// --- Startup replay ---

// LoadAll rebuilds the registry from stored events, scope by scope. A
// failure in one scope is logged and does not abort the others.
func (r *Registry) LoadAll(ctx context.Context) error {
	scopes, err := r.store.ListScopes(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, scope := range scopes {
		loaded, err := r.loadScope(ctx, scope)
		if err != nil {
			r.log.Error("Failed to load groups for scope",
				zap.String("scope", scope.String()),
				zap.Error(err))
			continue
		}

		r.mu.Lock()
		for id, g := range loaded {
			r.groups[scopedID{scope: scope, id: id}] = &groupHandle{group: g}
		}
		r.mu.Unlock()
		total += len(loaded)

		r.log.Info("Loaded groups from scope",
			zap.String("scope", scope.String()),
			zap.Int("groups", len(loaded)))
	}

	r.log.Info("Group registry loaded",
		zap.Int("scopes", len(scopes)),
		zap.Int("groups", total))
	return nil
}

func (r *Registry) loadScope(ctx context.Context, scope Scope) (map[string]*Group, error) {
	loaded := make(map[string]*Group)

	// Step 1: current state from the replaceable state events.
	stateEvents, err := r.store.QueryEvents(ctx, nostr.Filter{
		Kinds: []int{KindGroupMetadata, KindGroupAdmins, KindGroupMembers},
	}, scope)
	if err != nil {
		return nil, err
	}

	for i := range stateEvents {
		evt := &stateEvents[i]
		id := GroupIDFromEvent(evt)
		if id == "" {
			r.log.Warn("Skipping state event without group id",
				zap.String("event_id", evt.ID),
				zap.Int("kind", evt.Kind))
			continue
		}
		g, ok := loaded[id]
		if !ok {
			g = NewGroupWithID(id)
			g.CreatedAt = evt.CreatedAt
			loaded[id] = g
		}
		switch evt.Kind {
		case KindGroupMetadata:
			g.LoadMetadataFromEvent(evt)
		case KindGroupAdmins, KindGroupMembers:
			g.LoadMembersFromEvent(evt)
		}
	}

	// Step 2: historical creation, join-request and invite events.
	for id, g := range loaded {
		history, err := r.store.QueryEvents(ctx, nostr.Filter{
			Kinds: []int{KindCreateGroup, KindCreateInvite, KindJoinRequest},
			Tags:  nostr.TagMap{"h": []string{id}},
		}, scope)
		if err != nil {
			r.log.Error("Failed to load history for group",
				zap.String("group", id),
				zap.String("scope", scope.String()),
				zap.Error(err))
			continue
		}

		for i := range history {
			evt := &history[i]
			switch evt.Kind {
			case KindCreateGroup:
				g.updateTimestamps(evt)
			case KindJoinRequest:
				g.LoadJoinRequestFromEvent(evt)
			case KindCreateInvite:
				g.LoadInviteFromEvent(evt)
			}
		}

		if g.UpdatedAt < g.CreatedAt {
			g.UpdatedAt = g.CreatedAt
		}
	}

	return loaded, nil
}

// --- Introspection ---

// Scopes returns every scope currently holding at least one group.
func (r *Registry) Scopes() []Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Scope]struct{})
	for key := range r.groups {
		seen[key.scope] = struct{}{}
	}
	scopes := make([]Scope, 0, len(seen))
	for s := range seen {
		scopes = append(scopes, s)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].Name() < scopes[j].Name() })
	return scopes
}

// GroupIDs returns the ids of every group in a scope, sorted.
func (r *Registry) GroupIDs(scope Scope) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for key := range r.groups {
		if key.scope == scope {
			ids = append(ids, key.id)
		}
	}
	sort.Strings(ids)
	return ids
}

// UpdatePrivacyMetrics refreshes the per-privacy-class group gauges.
func (r *Registry) UpdatePrivacyMetrics() {
	counts := make(map[[2]bool]int)

	r.mu.RLock()
	handles := make([]*groupHandle, 0, len(r.groups))
	for _, h := range r.groups {
		handles = append(handles, h)
	}
	scopes := make(map[Scope]struct{})
	for key := range r.groups {
		scopes[key.scope] = struct{}{}
	}
	r.mu.RUnlock()

	for _, h := range handles {
		h.mu.RLock()
		key := [2]bool{h.group.Metadata.Private, h.group.Metadata.Closed}
		h.mu.RUnlock()
		counts[key]++
	}

	for _, private := range []bool{false, true} {
		for _, closed := range []bool{false, true} {
			metrics.GroupsByPrivacy.
				WithLabelValues(boolLabel(private), boolLabel(closed)).
				Set(float64(counts[[2]bool{private, closed}]))
		}
	}
	metrics.ScopesActive.Set(float64(len(scopes)))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
