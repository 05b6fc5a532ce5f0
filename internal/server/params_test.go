package server

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseUpdateParams(t *testing.T) {
	t.Run("Should accept JSON text", func(t *testing.T) {
		p, err := ParseUpdateParams(`{"status": "PAUSED", "bid_amount": 150}`)
		require.NoError(t, err)
		changes, err := BuildChangeSet(p)
		require.NoError(t, err)
		assert.Equal(t, ChangeSet{"status": "PAUSED", "bid_amount": json.Number("150")}, changes)
	})

	t.Run("Should accept structured objects", func(t *testing.T) {
		p, err := ParseUpdateParams(map[string]any{"bid_strategy": "LOWEST_COST_WITH_BID_CAP"})
		require.NoError(t, err)
		changes, err := BuildChangeSet(p)
		require.NoError(t, err)
		assert.Equal(t, ChangeSet{"bid_strategy": "LOWEST_COST_WITH_BID_CAP"}, changes)
	})

	t.Run("Should reject non-object shapes", func(t *testing.T) {
		for _, v := range []any{[]any{"status"}, 42, true} {
			_, err := ParseUpdateParams(v)
			var valErr ValidationError
			require.ErrorAs(t, err, &valErr, "input %v", v)
			assert.Equal(t, "INVALID_PARAMETERS", valErr.Code)
		}
	})

	t.Run("Should reject JSON text that is not an object", func(t *testing.T) {
		for _, raw := range []string{`[1,2]`, `"PAUSED"`, `12`, `{"a":1} {"b":2}`} {
			p, err := ParseUpdateParams(raw)
			require.NoError(t, err)
			_, err = BuildChangeSet(p)
			require.Error(t, err, raw)
			assert.Contains(t, err.Error(), "Invalid kwargs format")
			assert.Contains(t, err.Error(), "received: "+raw)
		}
	})

	t.Run("Should drop null values", func(t *testing.T) {
		p, err := ParseUpdateParams(`{"status": null}`)
		require.NoError(t, err)
		_, err = BuildChangeSet(p)
		assert.Equal(t, ErrNoChangesProvided, err)
	})

	t.Run("Should classify empty input", func(t *testing.T) {
		for _, v := range []any{nil, "", "  ", map[string]any{}} {
			p, err := ParseUpdateParams(v)
			require.NoError(t, err)
			assert.True(t, IsEmpty(p), "input %#v", v)
		}
		p, err := ParseUpdateParams("{}")
		require.NoError(t, err)
		assert.False(t, IsEmpty(p))
	})
}

func TestNewChangeSet_Properties(t *testing.T) {
	keys := append(slices.Clone(FieldWhitelist), "name", "daily_budget", "targeting", "end_time")

	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.OneOf(
			rapid.Just[any](nil),
			rapid.Map(rapid.String(), func(s string) any { return s }),
			rapid.Map(rapid.IntRange(0, 100000), func(n int) any { return n }),
		)
		params := map[string]any{}
		for _, k := range keys {
			if rapid.Bool().Draw(rt, "has_"+k) {
				params[k] = values.Draw(rt, k)
			}
		}

		changes := NewChangeSet(params)

		for k, v := range changes {
			if !slices.Contains(FieldWhitelist, k) {
				rt.Fatalf("non-whitelisted key %q kept", k)
			}
			if v == nil {
				rt.Fatalf("null value kept for %q", k)
			}
			if v != params[k] {
				rt.Fatalf("value for %q changed", k)
			}
		}
		for _, k := range FieldWhitelist {
			if v, ok := params[k]; ok && v != nil {
				if _, kept := changes[k]; !kept {
					rt.Fatalf("whitelisted key %q dropped", k)
				}
			}
		}
	})
}
