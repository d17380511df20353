package stats

import "github.com/verte-zerg/tripscore/internal/model"

// CommonsenseKeys lists the commonsense constraints counted in micro rates.
var CommonsenseKeys = []string{
	"is_valid_information_in_current_city",
	"is_valid_information_in_sandbox",
	"is_reasonable_visiting_city",
	"is_valid_restaurants",
	"is_valid_transportation",
	"is_valid_attractions",
	"is_not_absent",
	"is_valid_meal_gaps",
	"is_valid_event",
	"is_valid_poi_sequence",
}

// HardKeys lists the hard constraints counted in micro rates.
var HardKeys = []string{
	"valid_cost",
	"valid_room_rule",
	"valid_cuisine",
	"valid_room_type",
	"valid_transportation",
	"valid_event_type",
	"valid_attraction_type",
}

// categoryKeys maps local-constraint categories to the hard constraint
// that checks them.
var categoryKeys = map[string]string{
	model.CategoryHouseRule:      "valid_room_rule",
	model.CategoryCuisine:        "valid_cuisine",
	model.CategoryRoomType:       "valid_room_type",
	model.CategoryTransportation: "valid_transportation",
	model.CategoryEvent:          "valid_event_type",
	model.CategoryAttraction:     "valid_attraction_type",
}

// CategoryKey returns the hard constraint key for a category.
func CategoryKey(category string) (string, bool) {
	key, ok := categoryKeys[model.NormalizeCategory(category)]
	return key, ok
}

func isCategoryKey(key string) bool {
	for _, k := range categoryKeys {
		if k == key {
			return true
		}
	}
	return false
}

var labels = map[string]string{
	"is_valid_information_in_current_city": "Within Current City",
	"is_valid_information_in_sandbox":      "Within Sandbox",
	"is_reasonable_visiting_city":          "Reasonable City Route",
	"is_valid_restaurants":                 "Diverse Restaurants",
	"is_valid_transportation":              "Non-conf. Transportation",
	"is_valid_attractions":                 "Diverse Attractions",
	"is_valid_accommodation":               "Minimum Nights Stay",
	"is_not_absent":                        "Complete Information",
	"valid_cost":                           "Budget",
	"is_valid_event":                       "No Reapeated Events",
	"is_valid_meal_gaps":                   "Sufficient Time between meals",
	"is_valid_poi_sequence":                "PoI sequence starts and ends with accommodation",
	"valid_room_rule":                      "Room Rule",
	"valid_cuisine":                        "Cuisine",
	"valid_room_type":                      "Room Type",
	"valid_transportation":                 "Transportation",
	"valid_event_type":                     "Event Type",
	"valid_attraction_type":                "Attraction Type",
}

// Label returns the human-facing name of a constraint key. Unknown keys are
// returned unchanged.
func Label(key string) string {
	if label, ok := labels[key]; ok {
		return label
	}
	return key
}
