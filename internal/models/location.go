package models

// Location is one monitored store or branch.
type Location struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Region  string `json:"region"`
}

// Catalog is the ordered set of monitored locations.
type Catalog struct {
	Locations []Location `json:"locations"`
}

// Lookup returns the location with key.
func (c *Catalog) Lookup(key string) (Location, bool) {
	if c == nil {
		return Location{}, false
	}
	for _, l := range c.Locations {
		if l.Key == key {
			return l, true
		}
	}
	return Location{}, false
}

// Regions returns region names in first-seen order.
func (c *Catalog) Regions() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, l := range c.Locations {
		if !seen[l.Region] {
			seen[l.Region] = true
			out = append(out, l.Region)
		}
	}
	return out
}

// InRegion returns the locations of one region, or all of them when region is empty.
func (c *Catalog) InRegion(region string) []Location {
	if c == nil {
		return nil
	}
	var out []Location
	for _, l := range c.Locations {
		if region == "" || l.Region == region {
			out = append(out, l)
		}
	}
	return out
}

// RegionOf returns the region of a location key, or "" when unknown.
func (c *Catalog) RegionOf(key string) string {
	l, _ := c.Lookup(key)
	return l.Region
}
