// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package geo resolves Louisiana place names (parishes and major cities) to
// county FIPS codes for Census API geography filters.
package geo

import "strings"

// StateFIPS is the Louisiana state FIPS code.
const StateFIPS = "22"

// parishFIPS maps normalized parish names (lowercase, no "parish" suffix,
// "st." spelling) to their 3-digit county FIPS codes. All 64 parishes.
var parishFIPS = map[string]string{
	"acadia":               "001",
	"allen":                "003",
	"ascension":            "005",
	"assumption":           "007",
	"avoyelles":            "009",
	"beauregard":           "011",
	"bienville":            "013",
	"bossier":              "015",
	"caddo":                "017",
	"calcasieu":            "019",
	"caldwell":             "021",
	"cameron":              "023",
	"catahoula":            "025",
	"claiborne":            "027",
	"concordia":            "029",
	"de soto":              "031",
	"east baton rouge":     "033",
	"east carroll":         "035",
	"east feliciana":       "037",
	"evangeline":           "039",
	"franklin":             "041",
	"grant":                "043",
	"iberia":               "045",
	"iberville":            "047",
	"jackson":              "049",
	"jefferson":            "051",
	"jefferson davis":      "053",
	"lafayette":            "055",
	"lafourche":            "057",
	"la salle":             "059",
	"lincoln":              "061",
	"livingston":           "063",
	"madison":              "065",
	"morehouse":            "067",
	"natchitoches":         "069",
	"orleans":              "071",
	"ouachita":             "073",
	"plaquemines":          "075",
	"pointe coupee":        "077",
	"rapides":              "079",
	"red river":            "081",
	"richland":             "083",
	"sabine":               "085",
	"st. bernard":          "087",
	"st. charles":          "089",
	"st. helena":           "091",
	"st. james":            "093",
	"st. john the baptist": "095",
	"st. landry":           "097",
	"st. martin":           "099",
	"st. mary":             "101",
	"st. tammany":          "103",
	"tangipahoa":           "105",
	"tensas":               "107",
	"terrebonne":           "109",
	"union":                "111",
	"vermilion":            "113",
	"vernon":               "115",
	"washington":           "117",
	"webster":              "119",
	"west baton rouge":     "121",
	"west carroll":         "123",
	"west feliciana":       "125",
	"winn":                 "127",
}

// cityFIPS maps major Louisiana cities to the FIPS code of their parish.
// Cities that straddle parish lines map to the parish holding the city core.
var cityFIPS = map[string]string{
	"new orleans":  "071",
	"baton rouge":  "033",
	"shreveport":   "017",
	"lafayette":    "055",
	"lake charles": "019",
	"metairie":     "051",
	"kenner":       "051",
	"gretna":       "051",
	"bossier city": "015",
	"monroe":       "073",
	"alexandria":   "079",
	"houma":        "109",
	"slidell":      "103",
	"covington":    "103",
	"mandeville":   "103",
	"hammond":      "105",
	"opelousas":    "097",
	"ruston":       "061",
	"thibodaux":    "057",
	"new iberia":   "045",
	"natchitoches": "069",
}

// parishNames maps FIPS codes back to display names, built at init from
// parishFIPS.
var parishNames = func() map[string]string {
	names := make(map[string]string, len(parishFIPS))
	for key, fips := range parishFIPS {
		names[fips] = displayName(key)
	}
	return names
}()

// displayName title-cases a normalized parish key and appends "Parish".
func displayName(key string) string {
	words := strings.Fields(key)
	for i, w := range words {
		switch w {
		case "st.":
			words[i] = "St."
		case "the":
			// lowercased in "St. John the Baptist"
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + " Parish"
}

// normalize lowercases a place phrase, strips a trailing "parish" token, and
// canonicalizes "saint"/"st" to "st.".
func normalize(phrase string) string {
	s := strings.ToLower(strings.TrimSpace(phrase))
	s = strings.TrimSuffix(s, " parish")
	if rest, ok := strings.CutPrefix(s, "saint "); ok {
		s = "st. " + rest
	} else if rest, ok := strings.CutPrefix(s, "st "); ok {
		s = "st. " + rest
	}
	return s
}

// ResolveGeography resolves a place phrase (parish or city, with optional
// "Parish" suffix and "St."/"Saint" variants) to its parish name and 3-digit
// county FIPS code.
func ResolveGeography(phrase string) (parishName, countyFIPS string, ok bool) {
	key := normalize(phrase)
	if key == "" {
		return "", "", false
	}
	if fips, found := parishFIPS[key]; found {
		return parishNames[fips], fips, true
	}
	if fips, found := cityFIPS[key]; found {
		return parishNames[fips], fips, true
	}
	return "", "", false
}

// ExtractCountyFIPS scans a free-text question for the first Louisiana
// parish or city mention and returns its county FIPS code, or "" when no
// geography is mentioned.
//
// # Description
//
// Tries multi-word windows (longest first, up to four words) so "East Baton
// Rouge" wins over "Baton Rouge" wins over nothing. Punctuation around words
// is ignored.
func ExtractCountyFIPS(question string) string {
	words := strings.Fields(strings.ToLower(question))
	for i, w := range words {
		words[i] = strings.Trim(w, "?,.!;:\"'()")
	}

	for i := range words {
		max := i + 4
		if max > len(words) {
			max = len(words)
		}
		for j := max; j > i; j-- {
			if _, fips, ok := ResolveGeography(strings.Join(words[i:j], " ")); ok {
				return fips
			}
		}
	}
	return ""
}

// ValidFIPS reports whether a 3-digit code names a Louisiana parish.
func ValidFIPS(fips string) bool {
	_, ok := parishNames[fips]
	return ok
}

// ParishName returns the display name for a county FIPS code, or "" when the
// code is not a Louisiana parish.
func ParishName(fips string) string {
	return parishNames[fips]
}
