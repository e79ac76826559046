package citydata

import (
	"context"
	"fmt"
	"strings"

	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// matchRows returns the rows whose key appears in the query, or every row
// when nothing matches, so the agent always gets usable data back.
func matchRows(query string, rows map[string]string, order []string) []string {
	q := strings.ToLower(query)
	var matched []string
	for _, key := range order {
		if strings.Contains(q, key) {
			matched = append(matched, rows[key])
		}
	}
	if len(matched) == 0 {
		for _, key := range order {
			matched = append(matched, rows[key])
		}
	}
	return matched
}

type weatherSource struct{}

func (s *weatherSource) Name() string { return "city_weather" }

func (s *weatherSource) Description() string {
	return "Current weather conditions by district, for environmental context in planning questions"
}

func (s *weatherSource) Roles() []types.Role { return allRoles() }

func (s *weatherSource) Summary(ctx context.Context, query string) (string, error) {
	rows := map[string]string{
		"downtown":  "Downtown: 24C, partly cloudy, humidity 58%, wind 12 km/h NW",
		"riverside": "Riverside: 23C, overcast, humidity 64%, wind 9 km/h W",
		"hillcrest": "Hillcrest: 21C, clear, humidity 51%, wind 15 km/h NW",
		"harbor":    "Harbor: 22C, fog clearing, humidity 72%, wind 7 km/h SW",
	}
	order := []string{"downtown", "riverside", "hillcrest", "harbor"}
	return "Current weather:\n" + strings.Join(matchRows(query, rows, order), "\n"), nil
}

type airQualitySource struct{}

func (s *airQualitySource) Name() string { return "city_air_quality" }

func (s *airQualitySource) Description() string {
	return "Air quality index readings by monitoring station"
}

func (s *airQualitySource) Roles() []types.Role { return allRoles() }

func (s *airQualitySource) Summary(ctx context.Context, query string) (string, error) {
	rows := map[string]string{
		"downtown":  "Downtown station: AQI 68 (moderate), PM2.5 at 19 ug/m3",
		"riverside": "Riverside station: AQI 42 (good), PM2.5 at 10 ug/m3",
		"industrial": "Industrial corridor station: AQI 94 (moderate), PM2.5 at 31 ug/m3, " +
			"exceedance events twice this month",
		"harbor": "Harbor station: AQI 55 (moderate), PM2.5 at 14 ug/m3",
	}
	order := []string{"downtown", "riverside", "industrial", "harbor"}
	return "Air quality readings:\n" + strings.Join(matchRows(query, rows, order), "\n"), nil
}

type trafficSource struct{}

func (s *trafficSource) Name() string { return "city_traffic" }

func (s *trafficSource) Description() string {
	return "Traffic conditions and average speeds on major corridors"
}

func (s *trafficSource) Roles() []types.Role { return allRoles() }

func (s *trafficSource) Summary(ctx context.Context, query string) (string, error) {
	rows := map[string]string{
		"ring road":   "Ring Road: average 38 km/h, moderate congestion at the north interchange",
		"main street": "Main Street: average 19 km/h, heavy congestion between 5th and 9th Ave",
		"expressway":  "Harbor Expressway: average 72 km/h, free flow",
		"transit":     "Transit corridor: buses at 92% schedule adherence, tram line on time",
	}
	order := []string{"ring road", "main street", "expressway", "transit"}
	return "Traffic conditions:\n" + strings.Join(matchRows(query, rows, order), "\n"), nil
}

type demographicsSource struct{}

func (s *demographicsSource) Name() string { return "city_demographics" }

func (s *demographicsSource) Description() string {
	return "Census demographics by zone: population, density, growth rate"
}

func (s *demographicsSource) Roles() []types.Role { return staffRoles() }

func (s *demographicsSource) Summary(ctx context.Context, query string) (string, error) {
	rows := map[string]string{
		"downtown":  "Downtown: pop 84,200, density 9,400/km2, growth +2.1%/yr, median age 34",
		"riverside": "Riverside: pop 52,700, density 4,100/km2, growth +3.4%/yr, median age 31",
		"hillcrest": "Hillcrest: pop 38,900, density 2,200/km2, growth +0.8%/yr, median age 42",
		"harbor":    "Harbor: pop 61,300, density 5,800/km2, growth +1.6%/yr, median age 36",
	}
	order := []string{"downtown", "riverside", "hillcrest", "harbor"}
	return "Zone demographics:\n" + strings.Join(matchRows(query, rows, order), "\n"), nil
}

type propertyTrendsSource struct{}

func (s *propertyTrendsSource) Name() string { return "city_property_trends" }

func (s *propertyTrendsSource) Description() string {
	return "Real estate price trends and development activity by zone"
}

func (s *propertyTrendsSource) Roles() []types.Role { return staffRoles() }

func (s *propertyTrendsSource) Summary(ctx context.Context, query string) (string, error) {
	rows := map[string]string{
		"downtown":  "Downtown: residential $6,200/m2 (+5.1% YoY), 14 active development permits",
		"riverside": "Riverside: residential $4,800/m2 (+8.7% YoY), 22 active development permits",
		"hillcrest": "Hillcrest: residential $5,500/m2 (+1.9% YoY), 3 active development permits",
		"harbor":    "Harbor: mixed-use $4,100/m2 (+6.2% YoY), 9 active development permits",
	}
	order := []string{"downtown", "riverside", "hillcrest", "harbor"}
	return "Property trends:\n" + strings.Join(matchRows(query, rows, order), "\n"), nil
}

type budgetSource struct{}

func (s *budgetSource) Name() string { return "city_budget" }

func (s *budgetSource) Description() string {
	return "Municipal budget allocations and multi-year projections, administrative use only"
}

func (s *budgetSource) Roles() []types.Role { return []types.Role{types.RoleAdmin} }

func (s *budgetSource) Summary(ctx context.Context, query string) (string, error) {
	current := 125.0
	lines := []string{
		"Municipal budget overview:",
		fmt.Sprintf("Current budget: $%.0fM", current),
		"Infrastructure: $42M (34%), Transit: $28M (22%), Parks: $15M (12%)",
		"Five-year projection: +4.4% to +4.9% annual growth, reaching $158M in year 5",
	}
	return strings.Join(lines, "\n"), nil
}
