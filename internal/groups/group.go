package groups

import (
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/errors"
)

// GroupMetadata holds the mutable descriptive state of a group.
//
// private gates read access, closed gates auto-admission on join, broadcast
// restricts content posting to admins.
type GroupMetadata struct {
	Name      string
	About     string
	Picture   string
	Private   bool
	Closed    bool
	Broadcast bool
}

// NewGroupMetadata returns the defaults for a fresh group: private and
// closed until an admin says otherwise.
func NewGroupMetadata(name string) GroupMetadata {
	return GroupMetadata{Name: name, Private: true, Closed: true}
}

// Group is the in-memory state of a single NIP-29 group.
//
// Invariants upheld by every mutator:
//   - at least one member holds the admin role
//   - members and join requests are disjoint
//   - invite codes are unique
//   - Roles is the union of role sets across members
//   - CreatedAt <= UpdatedAt
//
// Mutators either apply fully or leave the group untouched. Callers hold the
// registry's per-group write lock for the duration of a mutation.
type Group struct {
	ID           string
	Metadata     GroupMetadata
	Members      map[string]*GroupMember
	JoinRequests map[string]struct{}
	Invites      map[string]*Invite
	Roles        RoleSet
	CreatedAt    nostr.Timestamp
	UpdatedAt    nostr.Timestamp
}

// NewGroupWithID returns an empty group shell, used when rebuilding state
// from stored events at startup.
func NewGroupWithID(id string) *Group {
	return &Group{
		ID:           id,
		Metadata:     NewGroupMetadata(id),
		Members:      make(map[string]*GroupMember),
		JoinRequests: make(map[string]struct{}),
		Invites:      make(map[string]*Invite),
		Roles:        NewRoleSet(),
	}
}

// NewGroup builds a group from its kind-9007 creation event. The creator
// becomes the sole admin.
func NewGroup(evt *nostr.Event) (*Group, error) {
	if evt.Kind != KindCreateGroup {
		return nil, errors.Notice("Invalid event kind for group creation")
	}
	id := GroupIDFromEvent(evt)
	if id == "" {
		return nil, errors.Invalid("group events must contain an 'h' tag")
	}

	g := NewGroupWithID(id)
	g.CreatedAt = evt.CreatedAt
	g.UpdatedAt = evt.CreatedAt
	g.Members[strings.ToLower(evt.PubKey)] = NewAdmin(strings.ToLower(evt.PubKey))
	g.updateRoles()
	return g, nil
}

// --- Queries ---

// IsMember reports whether pubkey belongs to the group.
func (g *Group) IsMember(pubkey string) bool {
	_, ok := g.Members[strings.ToLower(pubkey)]
	return ok
}

// IsAdmin reports whether pubkey holds the admin role.
func (g *Group) IsAdmin(pubkey string) bool {
	m, ok := g.Members[strings.ToLower(pubkey)]
	return ok && m.IsAdmin()
}

// AdminPubkeys returns the pubkeys currently holding the admin role.
func (g *Group) AdminPubkeys() []string {
	var admins []string
	for pk, m := range g.Members {
		if m.IsAdmin() {
			admins = append(admins, pk)
		}
	}
	return admins
}

func (g *Group) adminCount() int {
	n := 0
	for _, m := range g.Members {
		if m.IsAdmin() {
			n++
		}
	}
	return n
}

// --- Authorization ---

func (g *Group) canEditMembers(pubkey, relayPubkey string) bool {
	return pubkey == relayPubkey || g.IsAdmin(pubkey)
}

func (g *Group) canEditMetadata(pubkey, relayPubkey string) bool {
	return pubkey == relayPubkey || g.IsAdmin(pubkey)
}

func (g *Group) canCreateInvites(pubkey, relayPubkey string) bool {
	return pubkey == relayPubkey || g.IsAdmin(pubkey)
}

func (g *Group) canDelete(authedPubkey, relayPubkey string) error {
	if authedPubkey == "" {
		return errors.AuthRequired("User is not authenticated")
	}
	if authedPubkey == relayPubkey || g.IsAdmin(authedPubkey) {
		return nil
	}
	return errors.Restricted("User is not authorized to delete this event")
}

// VerifyMemberAccess is the write-path precondition applied before a mutable
// guard is handed out: non-members may not touch a closed group except to
// ask to join.
func (g *Group) VerifyMemberAccess(pubkey string, kind int) error {
	if kind != KindJoinRequest && g.Metadata.Closed && !g.IsMember(pubkey) {
		return errors.Restricted("User " + pubkey + " is not a member of this group")
	}
	return nil
}

// --- State helpers ---

func (g *Group) updateRoles() {
	union := NewRoleSet()
	for _, m := range g.Members {
		for r := range m.Roles {
			union.Add(r)
		}
	}
	g.Roles = union
}

func (g *Group) updateTimestamps(evt *nostr.Event) {
	if evt.Kind == KindCreateGroup {
		g.CreatedAt = evt.CreatedAt
	}
	if evt.CreatedAt > g.UpdatedAt {
		g.UpdatedAt = evt.CreatedAt
	}
}

// --- Mutators ---

// SetMetadata applies a kind-9002 edit-metadata event.
//
// The broadcast flag must be re-asserted on every edit: absence clears it.
func (g *Group) SetMetadata(evt *nostr.Event, scope Scope, relayPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindEditMetadata {
		return nil, errors.Notice("Invalid event kind for set metadata")
	}
	if !g.canEditMetadata(strings.ToLower(evt.PubKey), relayPubkey) {
		return nil, errors.Notice("User cannot edit metadata")
	}

	g.Metadata.Broadcast = false

	for _, tag := range evt.Tags {
		if len(tag) == 0 {
			continue
		}
		switch tag[0] {
		case "name":
			if len(tag) >= 2 {
				g.Metadata.Name = tag[1]
			}
		case "about":
			if len(tag) >= 2 {
				g.Metadata.About = tag[1]
			}
		case "picture":
			if len(tag) >= 2 {
				g.Metadata.Picture = tag[1]
			}
		case "public":
			g.Metadata.Private = false
		case "private":
			g.Metadata.Private = true
		case "open":
			g.Metadata.Closed = false
		case "closed":
			g.Metadata.Closed = true
		case "broadcast":
			g.Metadata.Broadcast = true
		}
	}

	g.updateTimestamps(evt)

	return []StoreCommand{
		SaveSignedEvent{Event: evt, Scope: scope},
		SaveUnsignedEvent{Event: g.MetadataEvent(relayPubkey), Scope: scope},
		SaveUnsignedEvent{Event: g.RolesEvent(relayPubkey), Scope: scope},
	}, nil
}

// AddMembers applies a kind-9000 add-user event. Every p tag becomes or
// updates a member; targets leave the join-request queue.
func (g *Group) AddMembers(evt *nostr.Event, scope Scope, relayPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindAddUser {
		return nil, errors.Notice("Invalid event kind for add members")
	}
	if !g.canEditMembers(strings.ToLower(evt.PubKey), relayPubkey) {
		return nil, errors.Notice("User is not authorized to add users to this group")
	}

	var incoming []*GroupMember
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		member, err := MemberFromTag(tag)
		if err != nil {
			continue
		}
		incoming = append(incoming, member)
	}

	if err := g.applyMembers(incoming, "Cannot unset last admin role"); err != nil {
		return nil, err
	}
	g.updateTimestamps(evt)

	return []StoreCommand{
		SaveSignedEvent{Event: evt, Scope: scope},
		SaveUnsignedEvent{Event: g.AdminsEvent(relayPubkey), Scope: scope},
		SaveUnsignedEvent{Event: g.MembersEvent(relayPubkey), Scope: scope},
	}, nil
}

// applyMembers upserts members, validating first so a rejection leaves the
// group untouched. The whole batch must not drop the admin count to zero.
func (g *Group) applyMembers(incoming []*GroupMember, lastAdminMsg string) error {
	for _, member := range incoming {
		existing, ok := g.Members[member.PubKey]
		if ok && existing.IsAdmin() && !member.IsAdmin() && g.adminCount() == 1 {
			return errors.Notice(lastAdminMsg)
		}
	}

	admins := make(map[string]bool)
	for pk, m := range g.Members {
		admins[pk] = m.IsAdmin()
	}
	hadAdmins := g.adminCount() > 0
	for _, member := range incoming {
		admins[member.PubKey] = member.IsAdmin()
	}
	anyAdmin := false
	for _, isAdmin := range admins {
		if isAdmin {
			anyAdmin = true
			break
		}
	}
	if hadAdmins && !anyAdmin {
		return errors.Notice(lastAdminMsg)
	}

	for _, member := range incoming {
		delete(g.JoinRequests, member.PubKey)
		g.Members[member.PubKey] = member
	}
	g.updateRoles()
	return nil
}

// AddPubkey admits pubkey as a plain member.
func (g *Group) AddPubkey(pubkey string) error {
	return g.applyMembers([]*GroupMember{NewMember(strings.ToLower(pubkey))}, "Cannot unset last admin role")
}

// RemoveMembers applies a kind-9001 remove-user event.
func (g *Group) RemoveMembers(evt *nostr.Event, scope Scope, relayPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindRemoveUser {
		return nil, errors.Notice("Invalid event kind for remove members")
	}
	if !g.canEditMembers(strings.ToLower(evt.PubKey), relayPubkey) {
		return nil, errors.Notice("User is not authorized to remove users from this group")
	}

	admins := g.AdminPubkeys()
	var targets []string
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		member, err := MemberFromTag(tag)
		if err != nil {
			return nil, err
		}
		targets = append(targets, member.PubKey)
	}

	// Validate the whole batch before touching state.
	remaining := make(map[string]struct{}, len(admins))
	for _, pk := range admins {
		remaining[pk] = struct{}{}
	}
	for _, pk := range targets {
		if len(admins) == 1 && admins[0] == pk {
			return nil, errors.Notice("Cannot remove last admin")
		}
		delete(remaining, pk)
	}
	if len(admins) > 0 && len(remaining) == 0 {
		return nil, errors.Notice("Cannot remove last admin")
	}

	removedAdmin := false
	for _, pk := range targets {
		if _, ok := g.Members[pk]; !ok {
			delete(g.JoinRequests, pk)
			continue
		}
		if g.IsAdmin(pk) {
			removedAdmin = true
		}
		delete(g.Members, pk)
		delete(g.JoinRequests, pk)
	}

	g.updateRoles()
	g.updateTimestamps(evt)

	commands := []StoreCommand{SaveSignedEvent{Event: evt, Scope: scope}}
	if removedAdmin {
		commands = append(commands, SaveUnsignedEvent{Event: g.AdminsEvent(relayPubkey), Scope: scope})
	}
	commands = append(commands, SaveUnsignedEvent{Event: g.MembersEvent(relayPubkey), Scope: scope})
	return commands, nil
}

// SetRoles applies a kind-9006 set-roles event, replacing the role set of
// every targeted member that exists.
func (g *Group) SetRoles(evt *nostr.Event, scope Scope, relayPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindSetRoles {
		return nil, errors.Notice("Invalid event kind for set roles")
	}
	if !g.canEditMembers(strings.ToLower(evt.PubKey), relayPubkey) {
		return nil, errors.Notice("User is not authorized to set roles")
	}

	var changes []*GroupMember
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		member, err := MemberFromTag(tag)
		if err != nil {
			return nil, err
		}
		changes = append(changes, member)
	}

	// First pass: the admin role may not vanish from the group.
	currentAdmins := g.AdminPubkeys()
	admins := make(map[string]bool)
	for pk, m := range g.Members {
		admins[pk] = m.IsAdmin()
	}
	for _, change := range changes {
		if _, ok := g.Members[change.PubKey]; !ok {
			continue
		}
		if len(currentAdmins) == 1 && currentAdmins[0] == change.PubKey && !change.IsAdmin() {
			return nil, errors.Notice("Cannot unset last admin role")
		}
		admins[change.PubKey] = change.IsAdmin()
	}
	anyAdmin := false
	for _, isAdmin := range admins {
		if isAdmin {
			anyAdmin = true
			break
		}
	}
	if !anyAdmin {
		return nil, errors.Notice("Cannot unset last admin role")
	}

	// Second pass: apply.
	for _, change := range changes {
		if existing, ok := g.Members[change.PubKey]; ok {
			existing.Roles = change.Roles
		}
	}

	g.updateRoles()
	g.updateTimestamps(evt)

	return []StoreCommand{
		SaveSignedEvent{Event: evt, Scope: scope},
		SaveUnsignedEvent{Event: g.RolesEvent(relayPubkey), Scope: scope},
		SaveUnsignedEvent{Event: g.MembersEvent(relayPubkey), Scope: scope},
	}, nil
}

// CreateInvite applies a kind-9009 create-invite event.
func (g *Group) CreateInvite(evt *nostr.Event, scope Scope, relayPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindCreateInvite {
		return nil, errors.Notice("Invalid event kind for create invite")
	}
	if !g.canCreateInvites(strings.ToLower(evt.PubKey), relayPubkey) {
		return nil, errors.Notice("User is not authorized to create invites")
	}

	codeTag := evt.Tags.GetFirst([]string{"code", ""})
	if codeTag == nil || len(*codeTag) < 2 || (*codeTag)[1] == "" {
		return nil, errors.Notice("Invite code not found in tag")
	}
	code := (*codeTag)[1]

	if _, exists := g.Invites[code]; exists {
		return nil, errors.Notice("Invite code already exists")
	}

	reusable := evt.Tags.GetFirst([]string{"reusable"}) != nil

	g.Invites[code] = &Invite{
		EventID:  evt.ID,
		Roles:    NewRoleSet(RoleMember),
		Reusable: reusable,
	}
	g.updateTimestamps(evt)

	return []StoreCommand{SaveSignedEvent{Event: evt, Scope: scope}}, nil
}

// JoinRequest applies a kind-9021 join request. Open groups and valid invite
// codes admit immediately; everything else queues the requester.
func (g *Group) JoinRequest(evt *nostr.Event, scope Scope, relayPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindJoinRequest {
		return nil, errors.Notice("Invalid event kind for join request")
	}
	pubkey := strings.ToLower(evt.PubKey)

	if g.IsMember(pubkey) {
		return nil, errors.Notice("User is already a member")
	}

	if !g.Metadata.Closed {
		g.Members[pubkey] = NewMember(pubkey)
		delete(g.JoinRequests, pubkey)
		g.updateRoles()
		g.updateTimestamps(evt)
		return g.joinCommands(true, evt, scope, relayPubkey), nil
	}

	var invite *Invite
	var code string
	if codeTag := evt.Tags.GetFirst([]string{"code", ""}); codeTag != nil && len(*codeTag) >= 2 {
		code = (*codeTag)[1]
		invite = g.Invites[code]
	}

	if invite == nil {
		g.JoinRequests[pubkey] = struct{}{}
		g.updateTimestamps(evt)
		return g.joinCommands(false, evt, scope, relayPubkey), nil
	}

	// Single-use invites become invalid after the first successful admission.
	if !invite.Reusable {
		delete(g.Invites, code)
	}

	g.Members[pubkey] = &GroupMember{PubKey: pubkey, Roles: invite.Roles.Clone()}
	delete(g.JoinRequests, pubkey)
	g.updateRoles()
	g.updateTimestamps(evt)
	return g.joinCommands(true, evt, scope, relayPubkey), nil
}

func (g *Group) joinCommands(autoJoined bool, evt *nostr.Event, scope Scope, relayPubkey string) []StoreCommand {
	commands := []StoreCommand{SaveSignedEvent{Event: evt, Scope: scope}}
	if autoJoined {
		member := g.Members[strings.ToLower(evt.PubKey)]
		commands = append(commands,
			SaveUnsignedEvent{Event: g.PutUserEvent(member, relayPubkey), Scope: scope},
			SaveUnsignedEvent{Event: g.AdminsEvent(relayPubkey), Scope: scope},
			SaveUnsignedEvent{Event: g.MembersEvent(relayPubkey), Scope: scope},
		)
	}
	return commands
}

// LeaveRequest applies a kind-9022 leave request. Leaving as the last admin
// is refused; a pending join request is withdrawn silently.
func (g *Group) LeaveRequest(evt *nostr.Event, scope Scope, relayPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindLeaveRequest {
		return nil, errors.Notice("Invalid event kind for leave request")
	}
	pubkey := strings.ToLower(evt.PubKey)

	if g.IsMember(pubkey) {
		if g.IsAdmin(pubkey) && g.adminCount() == 1 {
			return nil, errors.Notice("Cannot remove last admin")
		}
		delete(g.Members, pubkey)
		delete(g.JoinRequests, pubkey)
		g.updateRoles()
		g.updateTimestamps(evt)
		return []StoreCommand{
			SaveSignedEvent{Event: evt, Scope: scope},
			SaveUnsignedEvent{Event: g.MembersEvent(relayPubkey), Scope: scope},
		}, nil
	}

	if _, pending := g.JoinRequests[pubkey]; pending {
		delete(g.JoinRequests, pubkey)
		g.updateTimestamps(evt)
	}
	return nil, nil
}

// DeleteEventRequest applies a kind-9005 delete-event request. Invites whose
// creating event is deleted disappear with it.
func (g *Group) DeleteEventRequest(evt *nostr.Event, scope Scope, relayPubkey, authedPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindDeleteEvent {
		return nil, errors.Notice("Invalid event kind for delete event")
	}

	var eventIDs []string
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "e" && tag[1] != "" {
			eventIDs = append(eventIDs, tag[1])
		}
	}
	if len(eventIDs) == 0 {
		return nil, errors.Notice("No event IDs found in delete request")
	}

	if err := g.canDelete(authedPubkey, relayPubkey); err != nil {
		return nil, err
	}

	for code, invite := range g.Invites {
		for _, id := range eventIDs {
			if invite.EventID == id {
				delete(g.Invites, code)
				break
			}
		}
	}
	g.updateTimestamps(evt)

	return []StoreCommand{
		DeleteEvents{Filter: nostr.Filter{IDs: eventIDs}, Scope: scope},
		SaveSignedEvent{Event: evt, Scope: scope},
	}, nil
}

// DeleteGroupRequest applies a kind-9008 delete-group request. It purges all
// events tagged with the group id; the 9008 itself survives so the id stays
// burned.
func (g *Group) DeleteGroupRequest(evt *nostr.Event, scope Scope, relayPubkey, authedPubkey string) ([]StoreCommand, error) {
	if evt.Kind != KindDeleteGroup {
		return nil, errors.Notice("Invalid event kind for delete group")
	}

	if err := g.canDelete(authedPubkey, relayPubkey); err != nil {
		return nil, err
	}

	return []StoreCommand{
		DeleteEvents{Filter: nostr.Filter{Tags: nostr.TagMap{"h": []string{g.ID}}}, Scope: scope},
		DeleteEvents{Filter: nostr.Filter{Tags: nostr.TagMap{"d": []string{g.ID}}}, Scope: scope},
		SaveSignedEvent{Event: evt, Scope: scope},
	}, nil
}

// HandleContent applies an ordinary content event targeting the group.
// Open groups auto-admit the author when posting.
func (g *Group) HandleContent(evt *nostr.Event, scope Scope, relayPubkey string) ([]StoreCommand, error) {
	pubkey := strings.ToLower(evt.PubKey)
	isAdmin := g.IsAdmin(pubkey)
	isMember := g.IsMember(pubkey)

	if g.Metadata.Broadcast && !isAdmin && evt.Kind != KindJoinRequest && evt.Kind != KindLeaveRequest {
		return nil, errors.Restricted("Only admins can post in broadcast mode")
	}

	if g.Metadata.Private && g.Metadata.Closed && !isMember {
		return nil, errors.Notice("User is not a member of this group")
	}

	commands := []StoreCommand{SaveSignedEvent{Event: evt, Scope: scope}}

	if !g.Metadata.Closed {
		if !isMember {
			if err := g.AddPubkey(pubkey); err != nil {
				return nil, err
			}
			member := g.Members[pubkey]
			commands = append(commands,
				SaveUnsignedEvent{Event: g.PutUserEvent(member, relayPubkey), Scope: scope},
				SaveUnsignedEvent{Event: g.MembersEvent(relayPubkey), Scope: scope},
			)
		}
	} else if !isMember {
		return nil, errors.Notice("User is not a member of this group")
	}

	g.updateTimestamps(evt)
	return commands, nil
}

// --- State loading (startup replay) ---

// LoadMetadataFromEvent rebuilds metadata from a stored 39000 event.
func (g *Group) LoadMetadataFromEvent(evt *nostr.Event) {
	meta := GroupMetadata{Name: g.ID}
	for _, tag := range evt.Tags {
		if len(tag) == 0 {
			continue
		}
		switch tag[0] {
		case "name":
			if len(tag) >= 2 {
				meta.Name = tag[1]
			}
		case "about":
			if len(tag) >= 2 {
				meta.About = tag[1]
			}
		case "picture":
			if len(tag) >= 2 {
				meta.Picture = tag[1]
			}
		case "private":
			meta.Private = true
		case "closed":
			meta.Closed = true
		case "broadcast":
			meta.Broadcast = true
		}
	}
	g.Metadata = meta
	g.updateTimestamps(evt)
}

// LoadMembersFromEvent rebuilds membership from a stored 39001/39002 event.
func (g *Group) LoadMembersFromEvent(evt *nostr.Event) {
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		member, err := MemberFromTag(tag)
		if err != nil {
			continue
		}
		// The members list carries no roles; keep the roles an admins event
		// already loaded for this pubkey.
		if _, exists := g.Members[member.PubKey]; exists && evt.Kind == KindGroupMembers {
			continue
		}
		g.Members[member.PubKey] = member
		delete(g.JoinRequests, member.PubKey)
	}
	g.updateRoles()
	g.updateTimestamps(evt)
}

// LoadJoinRequestFromEvent records a stored 9021 from a non-member.
func (g *Group) LoadJoinRequestFromEvent(evt *nostr.Event) {
	pubkey := strings.ToLower(evt.PubKey)
	if !g.IsMember(pubkey) {
		g.JoinRequests[pubkey] = struct{}{}
		g.updateTimestamps(evt)
	}
}

// LoadInviteFromEvent records a stored 9009.
func (g *Group) LoadInviteFromEvent(evt *nostr.Event) {
	codeTag := evt.Tags.GetFirst([]string{"code", ""})
	if codeTag == nil || len(*codeTag) < 2 || (*codeTag)[1] == "" {
		return
	}

	roles := NewRoleSet()
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "role" {
			roles.Add(ParseRole(tag[1]))
		}
	}
	if len(roles) == 0 {
		roles.Add(RoleMember)
	}

	g.Invites[(*codeTag)[1]] = &Invite{
		EventID:  evt.ID,
		Roles:    roles,
		Reusable: evt.Tags.GetFirst([]string{"reusable"}) != nil,
	}
	g.updateTimestamps(evt)
}
