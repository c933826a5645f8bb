package civiltime

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Zone describes a timezone offered at registration.
type Zone struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SupportedZones lists the regions students and tutors are onboarded from.
var SupportedZones = []Zone{
	{Value: "Asia/Dubai", Label: "UAE (GST)"},
	{Value: "Asia/Riyadh", Label: "Saudi Arabia (AST)"},
	{Value: "Asia/Qatar", Label: "Qatar (AST)"},
	{Value: "Asia/Kuwait", Label: "Kuwait (AST)"},
	{Value: "Asia/Bahrain", Label: "Bahrain (AST)"},
	{Value: "Asia/Kolkata", Label: "India (IST)"},
	{Value: "Asia/Colombo", Label: "Sri Lanka (IST)"},
	{Value: "Asia/Dhaka", Label: "Bangladesh (BST)"},
	{Value: "Asia/Singapore", Label: "Singapore (SGT)"},
	{Value: "Asia/Tokyo", Label: "Japan (JST)"},
	{Value: "Europe/London", Label: "UK (GMT/BST)"},
	{Value: "Europe/Paris", Label: "France (CET)"},
	{Value: "Europe/Berlin", Label: "Germany (CET)"},
	{Value: "America/New_York", Label: "USA – Eastern"},
	{Value: "America/Chicago", Label: "USA – Central"},
	{Value: "America/Denver", Label: "USA – Mountain"},
	{Value: "America/Los_Angeles", Label: "USA – Pacific"},
	{Value: "Australia/Sydney", Label: "Australia"},
	{Value: "Pacific/Auckland", Label: "New Zealand"},
}

var zoneCache sync.Map

// LoadZone resolves an IANA identifier, caching successful lookups. "Local" names the
// server's own zone, not a place, and is rejected.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: zone is empty", ErrInvalidTimeInput)
	}
	if name == "Local" {
		return nil, fmt.Errorf("%w: zone %q is not an IANA identifier", ErrInvalidTimeInput, name)
	}
	if cached, ok := zoneCache.Load(name); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: zone %q: %v", ErrInvalidTimeInput, name, err)
	}
	zoneCache.Store(name, loc)
	return loc, nil
}

// ValidZone reports whether name is a loadable IANA identifier. Empty means the reference zone.
func ValidZone(name string) bool {
	if strings.TrimSpace(name) == "" {
		return true
	}
	_, err := LoadZone(name)
	return err == nil
}

// ViewerZone returns the zone to render for a stored preference, defaulting to the reference zone.
func ViewerZone(preference string) string {
	if strings.TrimSpace(preference) == "" {
		return ReferenceZone
	}
	return strings.TrimSpace(preference)
}
