package models

// Category groups sources by kind.
type Category string

const (
	CategoryNews   Category = "news"
	CategorySocial Category = "social"
)

// Capability describes which optional Article fields a source may populate.
type Capability struct {
	Category        Category
	HasBias         bool
	HasEngagement   bool
	NativeSentiment bool
}

var newsCapability = Capability{Category: CategoryNews, HasBias: true}

var capabilities = map[SourceName]Capability{
	SourceCNN:       newsCapability,
	SourceCBS:       newsCapability,
	SourceNBC:       newsCapability,
	SourceABC:       newsCapability,
	SourceFox:       newsCapability,
	SourceBreitbart: newsCapability,
	SourceNYPost:    newsCapability,
	SourceOANN:      newsCapability,
	SourceReddit:    {Category: CategorySocial, HasEngagement: true},
	SourceBluesky:   {Category: CategorySocial, HasEngagement: true},
}

// Capabilities returns the fixed capability entry for a source.
func Capabilities(s SourceName) (Capability, bool) {
	c, ok := capabilities[s]
	return c, ok
}

// IsNewsOutlet reports whether s is one of the fixed news outlets.
func IsNewsOutlet(s SourceName) bool {
	c, ok := capabilities[s]
	return ok && c.Category == CategoryNews
}

// IsSocial reports whether s is a social platform.
func IsSocial(s SourceName) bool {
	c, ok := capabilities[s]
	return ok && c.Category == CategorySocial
}
