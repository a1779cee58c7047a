package groups

import (
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		kind       int
		tags       nostr.Tags
		knownGroup bool
		want       EventClass
	}{
		{"create", KindCreateGroup, nostr.Tags{hTag("g1")}, false, ClassCreate},
		{"create over existing still classifies create", KindCreateGroup, nostr.Tags{hTag("g1")}, true, ClassCreate},
		{"edit metadata", KindEditMetadata, nostr.Tags{hTag("g1")}, true, ClassEditMetadata},
		{"add user", KindAddUser, nostr.Tags{hTag("g1")}, true, ClassAddUser},
		{"remove user", KindRemoveUser, nostr.Tags{hTag("g1")}, true, ClassRemoveUser},
		{"set roles", KindSetRoles, nostr.Tags{hTag("g1")}, true, ClassSetRoles},
		{"create invite", KindCreateInvite, nostr.Tags{hTag("g1")}, true, ClassCreateInvite},
		{"join request", KindJoinRequest, nostr.Tags{hTag("g1")}, true, ClassJoinRequest},
		{"leave request", KindLeaveRequest, nostr.Tags{hTag("g1")}, true, ClassLeaveRequest},
		{"delete event", KindDeleteEvent, nostr.Tags{hTag("g1")}, true, ClassDeleteEvent},
		{"delete group", KindDeleteGroup, nostr.Tags{hTag("g1")}, true, ClassDeleteGroup},
		{"content in known group", 1, nostr.Tags{hTag("g1")}, true, ClassGroupContent},
		{"content in unknown group", 1, nostr.Tags{hTag("g1")}, false, ClassUnmanagedContent},
		{"simple list without h tag", KindSimpleList, nostr.Tags{}, false, ClassAllowedNonGroup},
		{"gift wrap without h tag", KindGiftWrap, nostr.Tags{}, false, ClassAllowedNonGroup},
		{"event deletion without h tag", KindEventDeletion, nostr.Tags{}, false, ClassAllowedNonGroup},
		{"plain note without h tag", 1, nostr.Tags{}, false, ClassReject},
		{"client-submitted state event", KindGroupMetadata, nostr.Tags{{"d", "g1"}}, true, ClassReject},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt := &nostr.Event{Kind: tc.kind, Tags: tc.tags}
			require.Equal(t, tc.want, Classify(evt, tc.knownGroup))
		})
	}
}

func TestGroupIDFromEvent(t *testing.T) {
	content := &nostr.Event{Kind: 1, Tags: nostr.Tags{hTag("g1")}}
	require.Equal(t, "g1", GroupIDFromEvent(content))

	state := &nostr.Event{Kind: KindGroupMembers, Tags: nostr.Tags{{"d", "g2"}}}
	require.Equal(t, "g2", GroupIDFromEvent(state))

	// Addressable kinds resolve through the d tag only.
	mixed := &nostr.Event{Kind: KindGroupMetadata, Tags: nostr.Tags{hTag("nope"), {"d", "g3"}}}
	require.Equal(t, "g3", GroupIDFromEvent(mixed))

	none := &nostr.Event{Kind: 1, Tags: nostr.Tags{}}
	require.Equal(t, "", GroupIDFromEvent(none))
}

func TestKindSets(t *testing.T) {
	for _, kind := range []int{9000, 9001, 9002, 9005, 9006, 9007, 9008, 9009} {
		require.True(t, IsManagementKind(kind), "kind %d", kind)
	}
	require.False(t, IsManagementKind(KindJoinRequest))
	require.False(t, IsManagementKind(1))

	for _, kind := range []int{39000, 39001, 39002, 39003} {
		require.True(t, IsAddressableKind(kind), "kind %d", kind)
	}

	for _, kind := range []int{10009, 28934, 17375, 7375, 7376, 7374, 10019, 9321, 1059, 443, 5, 3079, 3080} {
		require.True(t, IsNonGroupAllowedKind(kind), "kind %d", kind)
	}
	require.False(t, IsNonGroupAllowedKind(1))
}
