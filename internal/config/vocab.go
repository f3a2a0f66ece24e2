package config

// Default vocabularies for the bundled demo catalog. Real deployments
// override these via the query.vocabulary config section.

var defaultCategories = []string{
	"tote bags",
	"crossbody bags",
	"backpacks",
	"shoulder bags",
	"clutches",
	"satchels",
	"duffel bags",
	"messenger bags",
	"laptop bags",
	"travel bags",
}

var defaultBrands = []string{
	"aldo",
	"nine west",
	"guess",
	"coach",
	"michael kors",
	"kate spade",
	"fossil",
	"tommy hilfiger",
	"calvin klein",
	"steve madden",
}

var defaultColors = []string{
	"black", "white", "brown", "tan", "beige", "red", "blue", "navy",
	"green", "grey", "pink", "purple", "yellow", "orange", "gold",
	"silver", "cream", "burgundy", "olive", "teal",
}

// Corrections map informal or singular forms to canonical vocabulary terms.
var defaultCategoryCorrections = map[string]string{
	"tote":       "tote bags",
	"totes":      "tote bags",
	"crossbody":  "crossbody bags",
	"cross body": "crossbody bags",
	"backpack":   "backpacks",
	"shoulder":   "shoulder bags",
	"clutch":     "clutches",
	"satchel":    "satchels",
	"duffel":     "duffel bags",
	"duffle":     "duffel bags",
	"messenger":  "messenger bags",
	"laptop":     "laptop bags",
}

var defaultColorCorrections = map[string]string{
	"gray":      "grey",
	"offwhite":  "white",
	"ivory":     "cream",
	"maroon":    "burgundy",
	"navy blue": "navy",
}
