package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/groups"
)

// defaultQueryLimit caps unbounded filters; the relay config may lower it
// further at the subscription layer.
const defaultQueryLimit = 500

// whereClause compiles a nostr filter plus scope into a SQL condition.
// The returned args line up with $1..$n placeholders starting at argIndex.
func whereClause(f nostr.Filter, scope groups.Scope, argIndex int) (string, []interface{}) {
	var conds []string
	var args []interface{}

	next := func(v interface{}) string {
		args = append(args, v)
		placeholder := fmt.Sprintf("$%d", argIndex)
		argIndex++
		return placeholder
	}

	conds = append(conds, fmt.Sprintf("scope = %s", next(scope.Name())))

	if len(f.IDs) > 0 {
		conds = append(conds, fmt.Sprintf("id = ANY(%s::text[])", next(f.IDs)))
	}
	if len(f.Authors) > 0 {
		conds = append(conds, fmt.Sprintf("pubkey = ANY(%s::text[])", next(f.Authors)))
	}
	if len(f.Kinds) > 0 {
		conds = append(conds, fmt.Sprintf("kind = ANY(%s::int[])", next(f.Kinds)))
	}
	if f.Since != nil {
		conds = append(conds, fmt.Sprintf("created_at >= %s", next(int64(*f.Since))))
	}
	if f.Until != nil {
		conds = append(conds, fmt.Sprintf("created_at <= %s", next(int64(*f.Until))))
	}

	// Tag conditions: values of one tag OR together, tags AND together.
	tagNames := make([]string, 0, len(f.Tags))
	for name := range f.Tags {
		tagNames = append(tagNames, name)
	}
	sort.Strings(tagNames)
	for _, name := range tagNames {
		values := f.Tags[name]
		if len(values) == 0 {
			continue
		}
		var alts []string
		for _, value := range values {
			pair, _ := json.Marshal([][]string{{name, value}})
			alts = append(alts, fmt.Sprintf("tags @> %s::jsonb", next(string(pair))))
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}

	return strings.Join(conds, " AND "), args
}

// buildSelect renders the full query for a filter, newest events first.
func buildSelect(f nostr.Filter, scope groups.Scope, maxLimit int) (string, []interface{}) {
	where, args := whereClause(f, scope, 1)

	limit := f.Limit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	query := fmt.Sprintf(
		`SELECT id, pubkey, created_at, kind, tags, content, sig FROM events WHERE %s ORDER BY created_at DESC LIMIT %d`,
		where, limit)
	return query, args
}

// buildDelete renders a deletion for every event matching the filter.
func buildDelete(f nostr.Filter, scope groups.Scope) (string, []interface{}) {
	where, args := whereClause(f, scope, 1)
	return "DELETE FROM events WHERE " + where, args
}

// buildCount renders a count for the filter.
func buildCount(f nostr.Filter, scope groups.Scope) (string, []interface{}) {
	where, args := whereClause(f, scope, 1)
	return "SELECT COUNT(*) FROM events WHERE " + where, args
}
