package groups

import (
	"sort"

	nostr "github.com/nbd-wtf/go-nostr"
)

// Projection of group state into addressable events. These are unsigned;
// the store signs them with the relay identity before persistence. They all
// carry the group id as their d tag, so a fresh projection supersedes the
// previous one.

// MetadataEvent projects the group metadata as a kind-39000 event.
func (g *Group) MetadataEvent(relayPubkey string) *nostr.Event {
	tags := nostr.Tags{
		nostr.Tag{"d", g.ID},
		nostr.Tag{"name", g.Metadata.Name},
	}

	if g.Metadata.Private {
		tags = append(tags, nostr.Tag{"private"})
	} else {
		tags = append(tags, nostr.Tag{"public"})
	}
	if g.Metadata.Closed {
		tags = append(tags, nostr.Tag{"closed"})
	} else {
		tags = append(tags, nostr.Tag{"open"})
	}
	if g.Metadata.About != "" {
		tags = append(tags, nostr.Tag{"about", g.Metadata.About})
	}
	if g.Metadata.Picture != "" {
		tags = append(tags, nostr.Tag{"picture", g.Metadata.Picture})
	}
	if g.Metadata.Broadcast {
		tags = append(tags, nostr.Tag{"broadcast"})
	}

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindGroupMetadata,
		Tags:      tags,
	}
}

// AdminsEvent projects the admins as a kind-39001 event, one p tag per admin
// with its role list.
func (g *Group) AdminsEvent(relayPubkey string) *nostr.Event {
	tags := nostr.Tags{nostr.Tag{"d", g.ID}}

	for _, pk := range sortedKeys(g.Members) {
		member := g.Members[pk]
		if !member.IsAdmin() {
			continue
		}
		tag := nostr.Tag{"p", member.PubKey}
		tag = append(tag, member.Roles.Sorted()...)
		tags = append(tags, tag)
	}

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindGroupAdmins,
		Tags:      tags,
	}
}

// MembersEvent projects the member list as a kind-39002 event.
func (g *Group) MembersEvent(relayPubkey string) *nostr.Event {
	tags := nostr.Tags{nostr.Tag{"d", g.ID}}
	for _, pk := range sortedKeys(g.Members) {
		tags = append(tags, nostr.Tag{"p", pk})
	}

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindGroupMembers,
		Tags:      tags,
	}
}

// RolesEvent projects the supported roles as a kind-39003 event: the two
// built-in roles plus any custom roles currently in use.
func (g *Group) RolesEvent(relayPubkey string) *nostr.Event {
	tags := nostr.Tags{nostr.Tag{"d", g.ID}}

	seen := map[Role]bool{RoleAdmin: true, RoleMember: true}
	roles := []Role{RoleAdmin, RoleMember}
	var custom []string
	for r := range g.Roles {
		if !seen[r] {
			custom = append(custom, string(r))
		}
	}
	sort.Strings(custom)
	for _, r := range custom {
		roles = append(roles, Role(r))
	}

	for _, r := range roles {
		tags = append(tags, nostr.Tag{"role", string(r), r.Description()})
	}

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindGroupRoles,
		Tags:      tags,
		Content:   "List of roles supported by this group",
	}
}

// PutUserEvent projects an auto-admission as a relay-authored kind-9000.
func (g *Group) PutUserEvent(member *GroupMember, relayPubkey string) *nostr.Event {
	tag := nostr.Tag{"p", member.PubKey}
	tag = append(tag, member.Roles.Sorted()...)

	return &nostr.Event{
		PubKey:    relayPubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindAddUser,
		Tags: nostr.Tags{
			tag,
			nostr.Tag{"h", g.ID},
		},
	}
}

// AllStateEvents projects the complete canonical state: metadata, roles,
// admins and members.
func (g *Group) AllStateEvents(relayPubkey string) []*nostr.Event {
	return []*nostr.Event{
		g.MetadataEvent(relayPubkey),
		g.RolesEvent(relayPubkey),
		g.AdminsEvent(relayPubkey),
		g.MembersEvent(relayPubkey),
	}
}

func sortedKeys(members map[string]*GroupMember) []string {
	keys := make([]string, 0, len(members))
	for pk := range members {
		keys = append(keys, pk)
	}
	sort.Strings(keys)
	return keys
}
