// Package vehiclenlp parses the make/model descriptions used by Brazilian
// vehicle registries ("VW/GOL 1.0", "I/MB C180", "GM/ONIX 1.0MT LT") into a
// canonical make and the remaining model text.
package vehiclenlp

import (
	"regexp"
	"strings"
)

// Description is a parsed registry make/model string.
type Description struct {
	Make     string // canonical, e.g. "Volkswagen"
	Model    string // e.g. "GOL 1.0"
	Imported bool   // registry "I/" or "IMP/" prefix
}

// makeAliases maps registry abbreviations and spellings to canonical make names.
var makeAliases = map[string]string{
	"vw":            "Volkswagen",
	"volks":         "Volkswagen",
	"volkswagen":    "Volkswagen",
	"gm":            "Chevrolet",
	"chev":          "Chevrolet",
	"chevrolet":     "Chevrolet",
	"fiat":          "Fiat",
	"ford":          "Ford",
	"mb":            "Mercedes-Benz",
	"m.benz":        "Mercedes-Benz",
	"m benz":        "Mercedes-Benz",
	"mbenz":         "Mercedes-Benz",
	"mercedes":      "Mercedes-Benz",
	"mercedes-benz": "Mercedes-Benz",
	"toyota":        "Toyota",
	"honda":         "Honda",
	"hyundai":       "Hyundai",
	"hyunday":       "Hyundai",
	"renault":       "Renault",
	"nissan":        "Nissan",
	"peugeot":       "Peugeot",
	"citroen":       "Citroën",
	"citroën":       "Citroën",
	"jeep":          "Jeep",
	"kia":           "Kia",
	"kia motors":    "Kia",
	"mitsubishi":    "Mitsubishi",
	"mmc":           "Mitsubishi",
	"bmw":           "BMW",
	"audi":          "Audi",
	"volvo":         "Volvo",
	"scania":        "Scania",
	"iveco":         "Iveco",
	"yamaha":        "Yamaha",
	"suzuki":        "Suzuki",
	"kawasaki":      "Kawasaki",
	"dafra":         "Dafra",
	"subaru":        "Subaru",
	"chery":         "Chery",
	"caoa chery":    "Chery",
	"jac":           "JAC",
	"byd":           "BYD",
	"gwm":           "GWM",
	"lr":            "Land Rover",
	"land rover":    "Land Rover",
	"porsche":       "Porsche",
	"ram":           "Ram",
	"dodge":         "Dodge",
	"troller":       "Troller",
	"agrale":        "Agrale",
	"marcopolo":     "Marcopolo",
}

// importPrefixRe matches the registry marker for imported vehicles.
var importPrefixRe = regexp.MustCompile(`(?i)^\s*(?:I|IMP)\s*/\s*`)

// spaceRe collapses runs of whitespace.
var spaceRe = regexp.MustCompile(`\s+`)

// CanonicalMake returns the canonical name for a make alias, or the trimmed
// input unchanged when the alias is unknown.
func CanonicalMake(s string) string {
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	if c, ok := makeAliases[strings.ToLower(s)]; ok {
		return c
	}
	return s
}

// KnownMake reports whether s is a recognised make alias.
func KnownMake(s string) bool {
	_, ok := makeAliases[strings.ToLower(spaceRe.ReplaceAllString(strings.TrimSpace(s), " "))]
	return ok
}

// Parse splits a registry description. Descriptions without a slash are
// checked for a leading make word ("I/TOYOTA COROLLA", "HONDA CIVIC");
// anything unrecognised is returned as the model with an empty make.
func Parse(desc string) Description {
	var d Description
	s := spaceRe.ReplaceAllString(strings.TrimSpace(desc), " ")
	if s == "" {
		return d
	}
	if loc := importPrefixRe.FindStringIndex(s); loc != nil {
		d.Imported = true
		s = s[loc[1]:]
	}

	if i := strings.Index(s, "/"); i > 0 {
		d.Make = CanonicalMake(s[:i])
		d.Model = strings.TrimSpace(s[i+1:])
		return d
	}

	// Longest alias prefix followed by a word boundary.
	lower := strings.ToLower(s)
	best := ""
	for alias := range makeAliases {
		if len(alias) <= len(best) || !strings.HasPrefix(lower, alias) {
			continue
		}
		if len(lower) > len(alias) && lower[len(alias)] != ' ' {
			continue
		}
		best = alias
	}
	if best == "" {
		d.Model = s
		return d
	}
	d.Make = makeAliases[best]
	d.Model = strings.TrimSpace(s[len(best):])
	return d
}
