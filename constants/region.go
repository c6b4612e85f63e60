package constants

// Region names a horizontal band of a document's first page.
type Region string

const (
	RegionHeader    Region = "header"
	RegionLineItems Region = "line_items"
	RegionFooter    Region = "footer"
)

var allRegions = []Region{
	RegionHeader,
	RegionLineItems,
	RegionFooter,
}

// Band is a vertical slice of the page expressed as fractions of its height.
// The band always spans the full page width.
type Band struct {
	Top    float64
	Bottom float64
}

var regionBands = map[Region]Band{
	RegionHeader:    {Top: 0, Bottom: 0.25},
	RegionLineItems: {Top: 0.35, Bottom: 0.8},
	RegionFooter:    {Top: 0.8, Bottom: 1},
}

// RegionsAsStringSlice lists the valid region names in page order.
func RegionsAsStringSlice() []string {
	result := make([]string, len(allRegions))
	for i, r := range allRegions {
		result[i] = string(r)
	}
	return result
}

// LookupRegion returns the band for an exact region name.
func LookupRegion(name string) (Region, Band, bool) {
	r := Region(name)
	b, ok := regionBands[r]
	return r, b, ok
}
