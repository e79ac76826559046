package citydata_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/service/citydata"
)

func TestForRole(t *testing.T) {
	names := func(sources []citydata.Source) map[string]bool {
		m := make(map[string]bool, len(sources))
		for _, s := range sources {
			m[s.Name()] = true
		}
		return m
	}

	t.Run("citizen gets public sources only", func(t *testing.T) {
		got := names(citydata.ForRole(types.RoleCitizen))
		gt.True(t, got["city_weather"])
		gt.True(t, got["city_air_quality"])
		gt.True(t, got["city_traffic"])
		gt.False(t, got["city_demographics"])
		gt.False(t, got["city_property_trends"])
		gt.False(t, got["city_budget"])
	})

	t.Run("planner gets staff sources but not budget", func(t *testing.T) {
		got := names(citydata.ForRole(types.RolePlanner))
		gt.True(t, got["city_demographics"])
		gt.True(t, got["city_property_trends"])
		gt.False(t, got["city_budget"])
	})

	t.Run("admin gets everything", func(t *testing.T) {
		gt.Array(t, citydata.ForRole(types.RoleAdmin)).Length(len(citydata.All()))
	})
}

func TestSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("zone mentioned in query narrows the answer", func(t *testing.T) {
		var demographics citydata.Source
		for _, s := range citydata.All() {
			if s.Name() == "city_demographics" {
				demographics = s
			}
		}
		gt.Value(t, demographics).NotNil()

		out, err := demographics.Summary(ctx, "what is the population of riverside?")
		gt.NoError(t, err)
		gt.String(t, out).Contains("Riverside")
		gt.False(t, len(out) > 200)
	})

	t.Run("unmatched query returns the full table", func(t *testing.T) {
		for _, s := range citydata.All() {
			out, err := s.Summary(ctx, "general outlook")
			gt.NoError(t, err)
			gt.True(t, len(out) > 0)
		}
	})
}
