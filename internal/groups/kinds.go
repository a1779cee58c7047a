package groups

import (
	nostr "github.com/nbd-wtf/go-nostr"
)

// NIP-29 moderation kinds (client -> relay).
const (
	KindAddUser      = 9000
	KindRemoveUser   = 9001
	KindEditMetadata = 9002
	KindDeleteEvent  = 9005
	KindSetRoles     = 9006
	KindCreateGroup  = 9007
	KindDeleteGroup  = 9008
	KindCreateInvite = 9009

	KindJoinRequest  = 9021
	KindLeaveRequest = 9022
)

// Relay-generated addressable state kinds (relay -> all).
const (
	KindGroupMetadata = 39000
	KindGroupAdmins   = 39001
	KindGroupMembers  = 39002
	KindGroupRoles    = 39003
)

// Kinds that may be stored without an h tag.
const (
	KindSimpleList         = 10009 // NIP-51 group bookmark list
	KindClaim              = 28934 // NIP-43 claim auth
	KindWallet             = 17375 // NIP-60 cashu wallet
	KindToken              = 7375
	KindSpendingHistory    = 7376
	KindQuote              = 7374
	KindNutzapInfo         = 10019 // NIP-61
	KindNutzap             = 9321
	KindGiftWrap           = 1059
	KindMLSKeyPackage      = 443
	KindEventDeletion      = 5
	KindPushRegistration   = 3079
	KindPushDeregistration = 3080
)

var managementKinds = map[int]bool{
	KindAddUser:      true,
	KindRemoveUser:   true,
	KindEditMetadata: true,
	KindDeleteEvent:  true,
	KindSetRoles:     true,
	KindCreateGroup:  true,
	KindDeleteGroup:  true,
	KindCreateInvite: true,
}

var userActionKinds = map[int]bool{
	KindJoinRequest:  true,
	KindLeaveRequest: true,
}

var addressableKinds = map[int]bool{
	KindGroupMetadata: true,
	KindGroupAdmins:   true,
	KindGroupMembers:  true,
	KindGroupRoles:    true,
}

var nonGroupAllowedKinds = map[int]bool{
	KindSimpleList:         true,
	KindClaim:              true,
	KindWallet:             true,
	KindToken:              true,
	KindSpendingHistory:    true,
	KindQuote:              true,
	KindNutzapInfo:         true,
	KindNutzap:             true,
	KindGiftWrap:           true,
	KindMLSKeyPackage:      true,
	KindEventDeletion:      true,
	KindPushRegistration:   true,
	KindPushDeregistration: true,
}

// IsManagementKind reports whether kind mutates group state when accepted.
func IsManagementKind(kind int) bool {
	return managementKinds[kind]
}

// IsAddressableKind reports whether kind is one of the relay-generated
// addressable state kinds.
func IsAddressableKind(kind int) bool {
	return addressableKinds[kind]
}

// IsNonGroupAllowedKind reports whether kind may be stored without an h tag.
func IsNonGroupAllowedKind(kind int) bool {
	return nonGroupAllowedKinds[kind]
}

// IsGroupRelatedKind covers every kind the group machinery owns: moderation,
// join/leave, addressable state, and claims. Content events under an h tag
// are excluded; they belong to whoever published them.
func IsGroupRelatedKind(kind int) bool {
	return managementKinds[kind] || userActionKinds[kind] || addressableKinds[kind] || kind == KindClaim
}

// EventClass is the outcome of classifying an inbound event.
type EventClass int

const (
	ClassCreate EventClass = iota
	ClassEditMetadata
	ClassAddUser
	ClassRemoveUser
	ClassSetRoles
	ClassCreateInvite
	ClassJoinRequest
	ClassLeaveRequest
	ClassDeleteEvent
	ClassDeleteGroup
	ClassGroupContent
	ClassAllowedNonGroup
	ClassUnmanagedContent
	ClassReject
)

func (c EventClass) String() string {
	switch c {
	case ClassCreate:
		return "create"
	case ClassEditMetadata:
		return "edit-metadata"
	case ClassAddUser:
		return "add-user"
	case ClassRemoveUser:
		return "remove-user"
	case ClassSetRoles:
		return "set-roles"
	case ClassCreateInvite:
		return "create-invite"
	case ClassJoinRequest:
		return "join-request"
	case ClassLeaveRequest:
		return "leave-request"
	case ClassDeleteEvent:
		return "delete-event"
	case ClassDeleteGroup:
		return "delete-group"
	case ClassGroupContent:
		return "group-content"
	case ClassAllowedNonGroup:
		return "allowed-non-group"
	case ClassUnmanagedContent:
		return "unmanaged-content"
	default:
		return "reject"
	}
}

var mutatorClasses = map[int]EventClass{
	KindAddUser:      ClassAddUser,
	KindRemoveUser:   ClassRemoveUser,
	KindEditMetadata: ClassEditMetadata,
	KindDeleteEvent:  ClassDeleteEvent,
	KindSetRoles:     ClassSetRoles,
	KindDeleteGroup:  ClassDeleteGroup,
	KindCreateInvite: ClassCreateInvite,
	KindJoinRequest:  ClassJoinRequest,
	KindLeaveRequest: ClassLeaveRequest,
}

// Classify maps an event to its handling class. knownGroup reports whether
// the registry holds a group for the event's (scope, h-tag).
func Classify(evt *nostr.Event, knownGroup bool) EventClass {
	if evt.Kind == KindCreateGroup {
		return ClassCreate
	}
	if class, ok := mutatorClasses[evt.Kind]; ok {
		return class
	}

	hTag := HTagValue(evt)
	switch {
	case hTag != "" && !knownGroup:
		return ClassUnmanagedContent
	case hTag != "":
		return ClassGroupContent
	case IsNonGroupAllowedKind(evt.Kind):
		return ClassAllowedNonGroup
	default:
		return ClassReject
	}
}

// HTagValue extracts the group id from an event's h tag.
func HTagValue(evt *nostr.Event) string {
	tag := evt.Tags.GetFirst([]string{"h", ""})
	if tag == nil || len(*tag) < 2 {
		return ""
	}
	return (*tag)[1]
}

// DTagValue extracts the replaceable identifier from an event's d tag.
func DTagValue(evt *nostr.Event) string {
	tag := evt.Tags.GetFirst([]string{"d", ""})
	if tag == nil || len(*tag) < 2 {
		return ""
	}
	return (*tag)[1]
}

// GroupIDFromEvent resolves the group id an event targets: the d tag for
// addressable state events, the h tag for everything else.
func GroupIDFromEvent(evt *nostr.Event) string {
	if IsAddressableKind(evt.Kind) {
		return DTagValue(evt)
	}
	return HTagValue(evt)
}
