package storage

import (
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/verse-pbc/groups-relay/internal/groups"
)

func TestWhereClauseAlwaysScopes(t *testing.T) {
	where, args := whereClause(nostr.Filter{}, groups.NamedScope("tenant"), 1)
	require.Equal(t, "scope = $1", where)
	require.Equal(t, []interface{}{"tenant"}, args)

	where, args = whereClause(nostr.Filter{}, groups.DefaultScope, 1)
	require.Equal(t, "scope = $1", where)
	require.Equal(t, []interface{}{""}, args)
}

func TestWhereClauseConditions(t *testing.T) {
	since := nostr.Timestamp(100)
	until := nostr.Timestamp(200)
	f := nostr.Filter{
		IDs:     []string{"id1"},
		Authors: []string{"pk1", "pk2"},
		Kinds:   []int{1, 9007},
		Since:   &since,
		Until:   &until,
	}

	where, args := whereClause(f, groups.DefaultScope, 1)
	require.Contains(t, where, "id = ANY($2::text[])")
	require.Contains(t, where, "pubkey = ANY($3::text[])")
	require.Contains(t, where, "kind = ANY($4::int[])")
	require.Contains(t, where, "created_at >= $5")
	require.Contains(t, where, "created_at <= $6")
	require.Len(t, args, 6)
}

func TestWhereClauseTagContainment(t *testing.T) {
	f := nostr.Filter{
		Tags: nostr.TagMap{"h": []string{"g1", "g2"}},
	}

	where, args := whereClause(f, groups.DefaultScope, 1)
	require.Contains(t, where, "(tags @> $2::jsonb OR tags @> $3::jsonb)")
	require.Equal(t, `[["h","g1"]]`, args[1])
	require.Equal(t, `[["h","g2"]]`, args[2])
}

func TestWhereClauseMultipleTagsAnd(t *testing.T) {
	f := nostr.Filter{
		Tags: nostr.TagMap{
			"d": []string{"g1"},
			"p": []string{"pk1"},
		},
	}

	where, args := whereClause(f, groups.DefaultScope, 1)
	// Tag names are ordered deterministically, conditions ANDed.
	require.Contains(t, where, `(tags @> $2::jsonb) AND (tags @> $3::jsonb)`)
	require.Equal(t, `[["d","g1"]]`, args[1])
	require.Equal(t, `[["p","pk1"]]`, args[2])
}

func TestBuildSelectOrdersAndLimits(t *testing.T) {
	query, _ := buildSelect(nostr.Filter{Limit: 10}, groups.DefaultScope, 500)
	require.Contains(t, query, "ORDER BY created_at DESC")
	require.Contains(t, query, "LIMIT 10")

	// Unbounded and oversized filters are capped.
	query, _ = buildSelect(nostr.Filter{}, groups.DefaultScope, 500)
	require.Contains(t, query, "LIMIT 500")
	query, _ = buildSelect(nostr.Filter{Limit: 99999}, groups.DefaultScope, 500)
	require.Contains(t, query, "LIMIT 500")
}

func TestBuildDelete(t *testing.T) {
	query, args := buildDelete(nostr.Filter{IDs: []string{"id1", "id2"}}, groups.NamedScope("tenant"))
	require.Equal(t, "DELETE FROM events WHERE scope = $1 AND id = ANY($2::text[])", query)
	require.Equal(t, "tenant", args[0])
}
