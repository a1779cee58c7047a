package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFilterFromRaw(t *testing.T) {
	var raw interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"kinds": [1, 11],
		"authors": ["aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"],
		"#h": ["g1", "g2"],
		"#e": ["deadbeef"],
		"limit": 20
	}`), &raw))

	f, err := parseFilterFromRaw(raw)
	require.NoError(t, err)

	require.Equal(t, []int{1, 11}, f.Kinds)
	require.Equal(t, []string{"g1", "g2"}, f.Tags["h"])
	require.Equal(t, []string{"deadbeef"}, f.Tags["e"])
	require.Equal(t, 20, f.Limit)
}

func TestParseFilterFromRawEmpty(t *testing.T) {
	var raw interface{}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &raw))

	f, err := parseFilterFromRaw(raw)
	require.NoError(t, err)
	require.Empty(t, f.Kinds)
	require.NotNil(t, f.Tags)
}

func TestParseFilterFromRawRejectsNonObject(t *testing.T) {
	_, err := parseFilterFromRaw("not a filter")
	require.Error(t, err)
}
