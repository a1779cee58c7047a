package groups

import (
	"fmt"
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

const (
	adminPK  = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	memberPK = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	otherPK  = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	relayPK  = "dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"
)

var eventCounter int

func testEvent(pubkey string, kind int, tags nostr.Tags) *nostr.Event {
	eventCounter++
	return &nostr.Event{
		ID:        fmt.Sprintf("event-%04d", eventCounter),
		PubKey:    pubkey,
		Kind:      kind,
		CreatedAt: nostr.Timestamp(1700000000 + eventCounter),
		Tags:      tags,
	}
}

func hTag(id string) nostr.Tag { return nostr.Tag{"h", id} }

func newTestGroup(t *testing.T) *Group {
	t.Helper()
	g, err := NewGroup(testEvent(adminPK, KindCreateGroup, nostr.Tags{hTag("g1")}))
	require.NoError(t, err)
	return g
}

func assertInvariants(t *testing.T, g *Group) {
	t.Helper()

	// At least one admin.
	require.NotEmpty(t, g.AdminPubkeys(), "group must keep at least one admin")

	// Members and join requests are disjoint.
	for pk := range g.JoinRequests {
		require.False(t, g.IsMember(pk), "join request %s is also a member", pk)
	}

	// Roles is the union of member role sets.
	union := NewRoleSet()
	for _, m := range g.Members {
		for r := range m.Roles {
			union.Add(r)
		}
	}
	require.Equal(t, union.Sorted(), g.Roles.Sorted())

	require.LessOrEqual(t, g.CreatedAt, g.UpdatedAt)
}

func TestNewGroup(t *testing.T) {
	g := newTestGroup(t)

	require.Equal(t, "g1", g.ID)
	require.True(t, g.IsAdmin(adminPK))
	require.Len(t, g.Members, 1)
	require.True(t, g.Metadata.Private)
	require.True(t, g.Metadata.Closed)
	assertInvariants(t, g)
}

func TestNewGroupRequiresHTag(t *testing.T) {
	_, err := NewGroup(testEvent(adminPK, KindCreateGroup, nostr.Tags{}))
	require.Error(t, err)
}

func TestSetMetadata(t *testing.T) {
	g := newTestGroup(t)

	evt := testEvent(adminPK, KindEditMetadata, nostr.Tags{
		hTag("g1"),
		{"name", "Pizza Lovers"},
		{"about", "a group"},
		{"public"},
		{"open"},
	})
	cmds, err := g.SetMetadata(evt, DefaultScope, relayPK)
	require.NoError(t, err)

	require.Equal(t, "Pizza Lovers", g.Metadata.Name)
	require.Equal(t, "a group", g.Metadata.About)
	require.False(t, g.Metadata.Private)
	require.False(t, g.Metadata.Closed)
	require.Len(t, cmds, 3)

	_, ok := cmds[0].(SaveSignedEvent)
	require.True(t, ok)
	meta := cmds[1].(SaveUnsignedEvent)
	require.Equal(t, KindGroupMetadata, meta.Event.Kind)
	roles := cmds[2].(SaveUnsignedEvent)
	require.Equal(t, KindGroupRoles, roles.Event.Kind)
	assertInvariants(t, g)
}

func TestSetMetadataBroadcastMustBeReasserted(t *testing.T) {
	g := newTestGroup(t)

	_, err := g.SetMetadata(testEvent(adminPK, KindEditMetadata, nostr.Tags{hTag("g1"), {"broadcast"}}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.True(t, g.Metadata.Broadcast)

	// Absence in a later edit clears the flag.
	_, err = g.SetMetadata(testEvent(adminPK, KindEditMetadata, nostr.Tags{hTag("g1"), {"name", "renamed"}}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.False(t, g.Metadata.Broadcast)
}

func TestSetMetadataRejectsNonAdmin(t *testing.T) {
	g := newTestGroup(t)
	require.NoError(t, g.AddPubkey(memberPK))

	_, err := g.SetMetadata(testEvent(memberPK, KindEditMetadata, nostr.Tags{hTag("g1"), {"name", "nope"}}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "cannot edit metadata")
}

func TestAddMembers(t *testing.T) {
	g := newTestGroup(t)

	evt := testEvent(adminPK, KindAddUser, nostr.Tags{
		hTag("g1"),
		{"p", memberPK},
		{"p", otherPK, "moderator"},
	})
	cmds, err := g.AddMembers(evt, DefaultScope, relayPK)
	require.NoError(t, err)

	require.True(t, g.IsMember(memberPK))
	require.True(t, g.Members[otherPK].Roles.Has(Role("moderator")))
	require.True(t, g.Roles.Has(Role("moderator")))
	require.Len(t, cmds, 3)
	assertInvariants(t, g)
}

func TestAddMembersClearsJoinRequest(t *testing.T) {
	g := newTestGroup(t)
	g.JoinRequests[memberPK] = struct{}{}

	_, err := g.AddMembers(testEvent(adminPK, KindAddUser, nostr.Tags{hTag("g1"), {"p", memberPK}}), DefaultScope, relayPK)
	require.NoError(t, err)

	require.True(t, g.IsMember(memberPK))
	require.NotContains(t, g.JoinRequests, memberPK)
	assertInvariants(t, g)
}

func TestAddMembersCannotUnsetLastAdmin(t *testing.T) {
	g := newTestGroup(t)

	_, err := g.AddMembers(testEvent(adminPK, KindAddUser, nostr.Tags{hTag("g1"), {"p", adminPK, "member"}}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Cannot unset last admin role")
	require.True(t, g.IsAdmin(adminPK))
	assertInvariants(t, g)
}

func TestAddMembersCannotDemoteAllAdminsAtOnce(t *testing.T) {
	g := newTestGroup(t)
	_, err := g.AddMembers(testEvent(adminPK, KindAddUser, nostr.Tags{hTag("g1"), {"p", memberPK, "admin"}}), DefaultScope, relayPK)
	require.NoError(t, err)

	_, err = g.AddMembers(testEvent(adminPK, KindAddUser, nostr.Tags{
		hTag("g1"),
		{"p", adminPK, "member"},
		{"p", memberPK, "member"},
	}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Cannot unset last admin role")
	require.True(t, g.IsAdmin(adminPK))
	require.True(t, g.IsAdmin(memberPK))
	assertInvariants(t, g)
}

func TestRemoveMembers(t *testing.T) {
	g := newTestGroup(t)
	require.NoError(t, g.AddPubkey(memberPK))

	cmds, err := g.RemoveMembers(testEvent(adminPK, KindRemoveUser, nostr.Tags{hTag("g1"), {"p", memberPK}}), DefaultScope, relayPK)
	require.NoError(t, err)

	require.False(t, g.IsMember(memberPK))
	// No admin was removed, so only the signed event and members projection.
	require.Len(t, cmds, 2)
	assertInvariants(t, g)
}

func TestRemoveMembersEmitsAdminsEventWhenAdminRemoved(t *testing.T) {
	g := newTestGroup(t)
	_, err := g.AddMembers(testEvent(adminPK, KindAddUser, nostr.Tags{hTag("g1"), {"p", memberPK, "admin"}}), DefaultScope, relayPK)
	require.NoError(t, err)

	cmds, err := g.RemoveMembers(testEvent(adminPK, KindRemoveUser, nostr.Tags{hTag("g1"), {"p", memberPK}}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	admins := cmds[1].(SaveUnsignedEvent)
	require.Equal(t, KindGroupAdmins, admins.Event.Kind)
	assertInvariants(t, g)
}

func TestRemoveMembersCannotRemoveLastAdmin(t *testing.T) {
	g := newTestGroup(t)

	_, err := g.RemoveMembers(testEvent(adminPK, KindRemoveUser, nostr.Tags{hTag("g1"), {"p", adminPK}}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Cannot remove last admin")
	require.True(t, g.IsAdmin(adminPK))
	assertInvariants(t, g)
}

func TestRemoveMembersCannotRemoveAllAdminsAtOnce(t *testing.T) {
	g := newTestGroup(t)
	_, err := g.AddMembers(testEvent(adminPK, KindAddUser, nostr.Tags{hTag("g1"), {"p", memberPK, "admin"}}), DefaultScope, relayPK)
	require.NoError(t, err)

	_, err = g.RemoveMembers(testEvent(adminPK, KindRemoveUser, nostr.Tags{
		hTag("g1"),
		{"p", adminPK},
		{"p", memberPK},
	}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Cannot remove last admin")
	require.Len(t, g.Members, 2)
	assertInvariants(t, g)
}

func TestSetRolesLastAdminProtection(t *testing.T) {
	g := newTestGroup(t)

	// S4: demoting the only admin is refused.
	_, err := g.SetRoles(testEvent(adminPK, KindSetRoles, nostr.Tags{hTag("g1"), {"p", adminPK, "member"}}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Cannot unset last admin role")
	require.True(t, g.IsAdmin(adminPK))
	assertInvariants(t, g)
}

func TestSetRolesReplacesRoleSet(t *testing.T) {
	g := newTestGroup(t)
	require.NoError(t, g.AddPubkey(memberPK))

	cmds, err := g.SetRoles(testEvent(adminPK, KindSetRoles, nostr.Tags{hTag("g1"), {"p", memberPK, "moderator"}}), DefaultScope, relayPK)
	require.NoError(t, err)

	require.Equal(t, []string{"moderator"}, g.Members[memberPK].Roles.Sorted())
	require.Len(t, cmds, 3)
	assertInvariants(t, g)
}

func TestSetRolesIgnoresNonMembers(t *testing.T) {
	g := newTestGroup(t)

	_, err := g.SetRoles(testEvent(adminPK, KindSetRoles, nostr.Tags{hTag("g1"), {"p", otherPK, "moderator"}}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.False(t, g.IsMember(otherPK))
	assertInvariants(t, g)
}

func TestCreateInvite(t *testing.T) {
	g := newTestGroup(t)

	evt := testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1"), {"code", "INV"}})
	cmds, err := g.CreateInvite(evt, DefaultScope, relayPK)
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	invite := g.Invites["INV"]
	require.NotNil(t, invite)
	require.Equal(t, evt.ID, invite.EventID)
	require.False(t, invite.Reusable)
	require.True(t, invite.Roles.Has(RoleMember))
}

func TestCreateInviteRejectsDuplicateCode(t *testing.T) {
	g := newTestGroup(t)

	_, err := g.CreateInvite(testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.NoError(t, err)
	_, err = g.CreateInvite(testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Invite code already exists")
}

func TestCreateInviteRequiresCode(t *testing.T) {
	g := newTestGroup(t)

	_, err := g.CreateInvite(testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Invite code not found")
}

func TestJoinRequestOpenGroupAutoJoins(t *testing.T) {
	g := newTestGroup(t)
	g.Metadata.Closed = false

	cmds, err := g.JoinRequest(testEvent(memberPK, KindJoinRequest, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.NoError(t, err)

	require.True(t, g.IsMember(memberPK))
	// Signed join + put-user + admins + members projections.
	require.Len(t, cmds, 4)
	assertInvariants(t, g)
}

func TestJoinRequestWithInvite(t *testing.T) {
	// S2: closed private group, invite admits immediately.
	g := newTestGroup(t)
	_, err := g.CreateInvite(testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.NoError(t, err)

	cmds, err := g.JoinRequest(testEvent(memberPK, KindJoinRequest, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.True(t, g.IsMember(memberPK))
	require.Len(t, cmds, 4)

	// A second join request from the same user is rejected.
	_, err = g.JoinRequest(testEvent(memberPK, KindJoinRequest, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "User is already a member")
	assertInvariants(t, g)
}

func TestJoinRequestSingleUseInviteConsumed(t *testing.T) {
	// S3: the second user of a single-use code lands in join requests.
	g := newTestGroup(t)
	_, err := g.CreateInvite(testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.NoError(t, err)

	_, err = g.JoinRequest(testEvent(memberPK, KindJoinRequest, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.NotContains(t, g.Invites, "INV")

	_, err = g.JoinRequest(testEvent(otherPK, KindJoinRequest, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.False(t, g.IsMember(otherPK))
	require.Contains(t, g.JoinRequests, otherPK)
	assertInvariants(t, g)
}

func TestJoinRequestReusableInviteNeverConsumed(t *testing.T) {
	g := newTestGroup(t)
	_, err := g.CreateInvite(testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1"), {"code", "INV"}, {"reusable"}}), DefaultScope, relayPK)
	require.NoError(t, err)

	_, err = g.JoinRequest(testEvent(memberPK, KindJoinRequest, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.NoError(t, err)
	_, err = g.JoinRequest(testEvent(otherPK, KindJoinRequest, nostr.Tags{hTag("g1"), {"code", "INV"}}), DefaultScope, relayPK)
	require.NoError(t, err)

	require.True(t, g.IsMember(memberPK))
	require.True(t, g.IsMember(otherPK))
	require.Contains(t, g.Invites, "INV")
	assertInvariants(t, g)
}

func TestJoinRequestClosedGroupWithoutInviteQueues(t *testing.T) {
	g := newTestGroup(t)

	cmds, err := g.JoinRequest(testEvent(memberPK, KindJoinRequest, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.False(t, g.IsMember(memberPK))
	require.Contains(t, g.JoinRequests, memberPK)
	require.Len(t, cmds, 1)
	assertInvariants(t, g)
}

func TestLeaveRequest(t *testing.T) {
	g := newTestGroup(t)
	require.NoError(t, g.AddPubkey(memberPK))

	cmds, err := g.LeaveRequest(testEvent(memberPK, KindLeaveRequest, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.False(t, g.IsMember(memberPK))
	require.Len(t, cmds, 2)
	assertInvariants(t, g)
}

func TestLeaveRequestLastAdminRefused(t *testing.T) {
	g := newTestGroup(t)

	_, err := g.LeaveRequest(testEvent(adminPK, KindLeaveRequest, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Cannot remove last admin")
	require.True(t, g.IsAdmin(adminPK))
	assertInvariants(t, g)
}

func TestLeaveRequestWithdrawsPendingJoin(t *testing.T) {
	g := newTestGroup(t)
	g.JoinRequests[memberPK] = struct{}{}

	cmds, err := g.LeaveRequest(testEvent(memberPK, KindLeaveRequest, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.Empty(t, cmds)
	require.NotContains(t, g.JoinRequests, memberPK)
}

func TestLeaveRequestByStrangerIsSilent(t *testing.T) {
	g := newTestGroup(t)

	cmds, err := g.LeaveRequest(testEvent(otherPK, KindLeaveRequest, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.Empty(t, cmds)
}

func TestDeleteEventRequest(t *testing.T) {
	g := newTestGroup(t)
	inviteEvt := testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1"), {"code", "INV"}})
	_, err := g.CreateInvite(inviteEvt, DefaultScope, relayPK)
	require.NoError(t, err)

	evt := testEvent(adminPK, KindDeleteEvent, nostr.Tags{hTag("g1"), {"e", inviteEvt.ID}})
	cmds, err := g.DeleteEventRequest(evt, DefaultScope, relayPK, adminPK)
	require.NoError(t, err)

	require.Len(t, cmds, 2)
	del := cmds[0].(DeleteEvents)
	require.Equal(t, []string{inviteEvt.ID}, del.Filter.IDs)
	// The deleted invite event takes its invite with it.
	require.NotContains(t, g.Invites, "INV")
}

func TestDeleteEventRequiresAuth(t *testing.T) {
	g := newTestGroup(t)

	evt := testEvent(adminPK, KindDeleteEvent, nostr.Tags{hTag("g1"), {"e", "deadbeef"}})
	_, err := g.DeleteEventRequest(evt, DefaultScope, relayPK, "")
	require.ErrorContains(t, err, "not authenticated")
}

func TestDeleteEventRequiresEventIDs(t *testing.T) {
	g := newTestGroup(t)

	evt := testEvent(adminPK, KindDeleteEvent, nostr.Tags{hTag("g1")})
	_, err := g.DeleteEventRequest(evt, DefaultScope, relayPK, adminPK)
	require.ErrorContains(t, err, "No event IDs")
}

func TestDeleteGroupRequestCommandOrder(t *testing.T) {
	g := newTestGroup(t)

	evt := testEvent(adminPK, KindDeleteGroup, nostr.Tags{hTag("g1")})
	cmds, err := g.DeleteGroupRequest(evt, DefaultScope, relayPK, adminPK)
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	byH := cmds[0].(DeleteEvents)
	require.Equal(t, []string{"g1"}, byH.Filter.Tags["h"])
	byD := cmds[1].(DeleteEvents)
	require.Equal(t, []string{"g1"}, byD.Filter.Tags["d"])
	_, ok := cmds[2].(SaveSignedEvent)
	require.True(t, ok)
}

func TestDeleteGroupRequiresAdmin(t *testing.T) {
	g := newTestGroup(t)
	require.NoError(t, g.AddPubkey(memberPK))

	evt := testEvent(memberPK, KindDeleteGroup, nostr.Tags{hTag("g1")})
	_, err := g.DeleteGroupRequest(evt, DefaultScope, relayPK, memberPK)
	require.ErrorContains(t, err, "not authorized")
}

func TestHandleContentBroadcastRestriction(t *testing.T) {
	// S5: in broadcast mode only admins post; join/leave stay allowed.
	g := newTestGroup(t)
	require.NoError(t, g.AddPubkey(memberPK))
	g.Metadata.Broadcast = true

	_, err := g.HandleContent(testEvent(memberPK, 1, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "Only admins can post in broadcast mode")

	cmds, err := g.HandleContent(testEvent(adminPK, 1, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	_, err = g.LeaveRequest(testEvent(memberPK, KindLeaveRequest, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.NoError(t, err)
}

func TestHandleContentOpenGroupAutoAdmits(t *testing.T) {
	g := newTestGroup(t)
	g.Metadata.Closed = false

	cmds, err := g.HandleContent(testEvent(memberPK, 1, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.NoError(t, err)

	require.True(t, g.IsMember(memberPK))
	// Content + put-user + members projection in one batch.
	require.Len(t, cmds, 3)
	assertInvariants(t, g)
}

func TestHandleContentClosedGroupRejectsNonMember(t *testing.T) {
	g := newTestGroup(t)
	g.Metadata.Private = false

	_, err := g.HandleContent(testEvent(memberPK, 1, nostr.Tags{hTag("g1")}), DefaultScope, relayPK)
	require.ErrorContains(t, err, "User is not a member of this group")
}

func TestStateProjectionIsIdempotent(t *testing.T) {
	g := newTestGroup(t)
	require.NoError(t, g.AddPubkey(memberPK))
	g.Metadata.About = "about"
	g.Metadata.Broadcast = true

	first := g.AllStateEvents(relayPK)
	second := g.AllStateEvents(relayPK)
	require.Len(t, first, 4)
	for i := range first {
		require.Equal(t, first[i].Kind, second[i].Kind)
		require.Equal(t, first[i].Tags, second[i].Tags)
	}
}

func TestStateEventsShareGroupIDAsDTag(t *testing.T) {
	g := newTestGroup(t)
	for _, evt := range g.AllStateEvents(relayPK) {
		require.Equal(t, "g1", DTagValue(evt))
	}
}

func TestVerifyMemberAccess(t *testing.T) {
	g := newTestGroup(t)

	require.Error(t, g.VerifyMemberAccess(memberPK, 1))
	require.NoError(t, g.VerifyMemberAccess(memberPK, KindJoinRequest))
	require.NoError(t, g.VerifyMemberAccess(adminPK, 1))

	g.Metadata.Closed = false
	require.NoError(t, g.VerifyMemberAccess(memberPK, 1))
}

func TestLoadMetadataFromEvent(t *testing.T) {
	g := NewGroupWithID("g1")
	g.Members[adminPK] = NewAdmin(adminPK)
	g.updateRoles()

	evt := testEvent(relayPK, KindGroupMetadata, nostr.Tags{
		{"d", "g1"},
		{"name", "Restored"},
		{"private"},
		{"closed"},
		{"broadcast"},
	})
	g.LoadMetadataFromEvent(evt)

	require.Equal(t, "Restored", g.Metadata.Name)
	require.True(t, g.Metadata.Private)
	require.True(t, g.Metadata.Closed)
	require.True(t, g.Metadata.Broadcast)
}

func TestLoadMembersFromEvent(t *testing.T) {
	g := NewGroupWithID("g1")

	evt := testEvent(relayPK, KindGroupAdmins, nostr.Tags{
		{"d", "g1"},
		{"p", adminPK, "admin"},
		{"p", memberPK},
	})
	g.LoadMembersFromEvent(evt)

	require.True(t, g.IsAdmin(adminPK))
	require.True(t, g.IsMember(memberPK))
	require.True(t, g.Members[memberPK].Roles.Has(RoleMember))
	assertInvariants(t, g)
}

func TestLoadInviteFromEvent(t *testing.T) {
	g := NewGroupWithID("g1")
	g.Members[adminPK] = NewAdmin(adminPK)
	g.updateRoles()

	evt := testEvent(adminPK, KindCreateInvite, nostr.Tags{hTag("g1"), {"code", "INV"}, {"reusable"}})
	g.LoadInviteFromEvent(evt)

	invite := g.Invites["INV"]
	require.NotNil(t, invite)
	require.True(t, invite.Reusable)
	require.Equal(t, evt.ID, invite.EventID)
}

func TestParseRole(t *testing.T) {
	require.Equal(t, RoleMember, ParseRole(""))
	require.Equal(t, RoleMember, ParseRole("  "))
	require.Equal(t, RoleAdmin, ParseRole("Admin"))
	require.Equal(t, RoleAdmin, ParseRole("ADMIN"))
	require.Equal(t, Role("moderator"), ParseRole("Moderator"))
}
