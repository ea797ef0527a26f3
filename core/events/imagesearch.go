package events

// ImageHit is one ranked image search result.
type ImageHit struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"`
	Description string  `json:"description"`
	Label       string  `json:"label"`
	Score       float64 `json:"score"`
}

// ImageSearchResults carries the ranked hits for a description-intent query.
type ImageSearchResults struct {
	Base
	Hits []ImageHit
}

// NewImageSearchResults creates an image search results event. Hit order is
// preserved as given.
func NewImageSearchResults(hits []ImageHit) ImageSearchResults {
	return ImageSearchResults{Base: NewBase(KindImageSearchResults), Hits: hits}
}
