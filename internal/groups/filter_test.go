package groups

import (
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/verse-pbc/groups-relay/internal/errors"
)

func setupAccessControl(t *testing.T) (*Dispatcher, *Registry, *fakeStore) {
	t.Helper()
	d, registry, store := newTestDispatcher()

	// g2 is private and closed with admin A and member M (the S7 setup).
	process(t, d, store, testEvent(adminPK, KindCreateGroup, nostr.Tags{hTag("g2")}), DefaultScope, adminPK)
	process(t, d, store, testEvent(adminPK, KindAddUser, nostr.Tags{hTag("g2"), {"p", memberPK}}), DefaultScope, adminPK)
	return d, registry, store
}

func TestVerifyFilterPrivateGroupGating(t *testing.T) {
	_, registry, _ := setupAccessControl(t)
	filter := nostr.Filter{Kinds: []int{11}, Tags: nostr.TagMap{"h": []string{"g2"}}}

	// S7: unauthenticated -> auth-required.
	err := registry.VerifyFilter("", DefaultScope, filter)
	require.Error(t, err)
	require.Equal(t, errors.KindAuthRequired, errors.AsProtocol(err).Kind)

	// Authenticated non-member -> restricted.
	err = registry.VerifyFilter(otherPK, DefaultScope, filter)
	require.Error(t, err)
	require.Equal(t, errors.KindRestricted, errors.AsProtocol(err).Kind)

	// Member, admin and relay identity pass.
	require.NoError(t, registry.VerifyFilter(memberPK, DefaultScope, filter))
	require.NoError(t, registry.VerifyFilter(adminPK, DefaultScope, filter))
	require.NoError(t, registry.VerifyFilter(relayPK, DefaultScope, filter))
}

func TestVerifyFilterMetadataQueriesAllowed(t *testing.T) {
	_, registry, _ := setupAccessControl(t)

	// Addressable kinds are metadata queries, always allowed.
	require.NoError(t, registry.VerifyFilter("", DefaultScope, nostr.Filter{
		Kinds: []int{KindGroupMetadata},
		Tags:  nostr.TagMap{"h": []string{"g2"}},
	}))

	// A d-tag query is a metadata query too.
	require.NoError(t, registry.VerifyFilter("", DefaultScope, nostr.Filter{
		Tags: nostr.TagMap{"d": []string{"g2"}},
	}))
}

func TestVerifyFilterUnknownGroupAllowed(t *testing.T) {
	_, registry, _ := setupAccessControl(t)

	// Unknown ids may be unmanaged groups; gating must not reject them.
	require.NoError(t, registry.VerifyFilter("", DefaultScope, nostr.Filter{
		Tags: nostr.TagMap{"h": []string{"unknown"}},
	}))
}

func TestVerifyFilterReferenceQueriesAllowed(t *testing.T) {
	_, registry, _ := setupAccessControl(t)

	require.NoError(t, registry.VerifyFilter("", DefaultScope, nostr.Filter{IDs: []string{"deadbeef"}}))
	require.NoError(t, registry.VerifyFilter("", DefaultScope, nostr.Filter{Authors: []string{memberPK}}))
	require.NoError(t, registry.VerifyFilter("", DefaultScope, nostr.Filter{
		Tags: nostr.TagMap{"e": []string{"deadbeef"}},
	}))
}

func TestVerifyFilterScopeIsolation(t *testing.T) {
	_, registry, _ := setupAccessControl(t)

	// g2 does not exist in another scope, so the query passes there.
	require.NoError(t, registry.VerifyFilter("", NamedScope("tenant"), nostr.Filter{
		Tags: nostr.TagMap{"h": []string{"g2"}},
	}))
}

func TestCanSeeEventVisibilityLaw(t *testing.T) {
	// Property 10 for a private, closed group.
	d, registry, store := setupAccessControl(t)

	authorEvt := testEvent(memberPK, 1, nostr.Tags{hTag("g2")})
	process(t, d, store, authorEvt, DefaultScope, memberPK)
	inviteEvt := testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g2"), {"code", "SECRET"}})
	process(t, d, store, inviteEvt, DefaultScope, adminPK)

	// Unauthenticated: auth required.
	_, err := registry.CanSeeEvent(authorEvt, DefaultScope, "")
	require.Error(t, err)
	require.Equal(t, errors.KindAuthRequired, errors.AsProtocol(err).Kind)

	// Relay identity, author and admin see everything.
	for _, viewer := range []string{relayPK, memberPK, adminPK} {
		visible, err := registry.CanSeeEvent(authorEvt, DefaultScope, viewer)
		require.NoError(t, err)
		require.True(t, visible, "viewer %s", viewer)
	}

	// Members see content but not invites.
	visible, err := registry.CanSeeEvent(inviteEvt, DefaultScope, memberPK)
	require.NoError(t, err)
	require.False(t, visible)

	visible, err = registry.CanSeeEvent(inviteEvt, DefaultScope, adminPK)
	require.NoError(t, err)
	require.True(t, visible)

	// Non-members see nothing.
	visible, err = registry.CanSeeEvent(authorEvt, DefaultScope, otherPK)
	require.NoError(t, err)
	require.False(t, visible)
}

func TestCanSeeEventPublicGroup(t *testing.T) {
	d, registry, store := newTestDispatcher()
	process(t, d, store, testEvent(adminPK, KindCreateGroup, nostr.Tags{hTag("g1")}), DefaultScope, adminPK)
	process(t, d, store, testEvent(adminPK, KindEditMetadata, nostr.Tags{hTag("g1"), {"public"}}), DefaultScope, adminPK)

	evt := testEvent(adminPK, 1, nostr.Tags{hTag("g1")})
	visible, err := registry.CanSeeEvent(evt, DefaultScope, "")
	require.NoError(t, err)
	require.True(t, visible)
}

func TestCanSeeEventOutsideAnyGroup(t *testing.T) {
	_, registry, _ := newTestDispatcher()

	visible, err := registry.CanSeeEvent(&nostr.Event{Kind: 1, Tags: nostr.Tags{}}, DefaultScope, "")
	require.NoError(t, err)
	require.True(t, visible)

	// Unmanaged group content is visible to everyone.
	visible, err = registry.CanSeeEvent(&nostr.Event{Kind: 1, Tags: nostr.Tags{hTag("wild")}}, DefaultScope, "")
	require.NoError(t, err)
	require.True(t, visible)
}

func TestVerifyGroupAccess(t *testing.T) {
	_, registry, _ := setupAccessControl(t)

	registry.View(DefaultScope, "g2", func(g *Group) {
		require.Error(t, registry.VerifyGroupAccess(g, ""))
		require.Error(t, registry.VerifyGroupAccess(g, otherPK))
		require.NoError(t, registry.VerifyGroupAccess(g, memberPK))
		require.NoError(t, registry.VerifyGroupAccess(g, relayPK))
	})

	// Public groups are readable by anyone.
	d, registry2, store := newTestDispatcher()
	process(t, d, store, testEvent(adminPK, KindCreateGroup, nostr.Tags{hTag("pub")}), DefaultScope, adminPK)
	process(t, d, store, testEvent(adminPK, KindEditMetadata, nostr.Tags{hTag("pub"), {"public"}}), DefaultScope, adminPK)
	registry2.View(DefaultScope, "pub", func(g *Group) {
		require.NoError(t, registry2.VerifyGroupAccess(g, ""))
	})
}
