package models

import (
	"time"
)

// Category is the fixed set of marker categories. The client may render an
// unknown category with a fallback icon, but creation rejects anything
// outside this set.
type Category string

const (
	CategoryFood           Category = "Food"
	CategoryClothes        Category = "Clothes"
	CategorySchool         Category = "School"
	CategorySports         Category = "Sports"
	CategoryParty          Category = "Party"
	CategoryOrgEvents      Category = "Org Events"
	CategoryEmergencies    Category = "Emergencies"
	CategoryContraceptives Category = "Contraceptives"
	CategoryOther          Category = "Other"
	CategoryUnknown        Category = "Unknown"
)

var validCategories = map[Category]struct{}{
	CategoryFood:           {},
	CategoryClothes:        {},
	CategorySchool:         {},
	CategorySports:         {},
	CategoryParty:          {},
	CategoryOrgEvents:      {},
	CategoryEmergencies:    {},
	CategoryContraceptives: {},
	CategoryOther:          {},
	CategoryUnknown:        {},
}

func (c Category) Valid() bool {
	_, ok := validCategories[c]
	return ok
}

// Marker is an ephemeral, categorized, geotagged notice. All fields except
// the like set are immutable once created.
type Marker struct {
	ID          string
	AuthorID    string
	Author      string
	Longitude   float64
	Latitude    float64
	Category    Category
	Title       string
	Description string
	Picture     string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Likes       []string
}

// Expired reports whether the marker is logically expired at now. Expired
// markers stay in storage until purged but are excluded from every query.
func (m *Marker) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// LikedBy reports whether the given account is in the like set.
func (m *Marker) LikedBy(accountID string) bool {
	for _, id := range m.Likes {
		if id == accountID {
			return true
		}
	}
	return false
}
