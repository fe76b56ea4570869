package model

import "time"

// MaxListingImages caps the stored image list and the image jobs per listing.
const MaxListingImages = 10

// Details is the merged, loosely structured upstream payload of a listing.
type Details map[string]interface{}

// Listing is a previously seen upstream listing for one user and provider.
type Listing struct {
	UserID          string    `json:"user_id"`
	Provider        Provider  `json:"provider"`
	ListingID       string    `json:"listing_id"`
	Details         Details   `json:"details"`
	PrimaryImageURL *string   `json:"primary_image_url"`
	Images          []string  `json:"images"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
}

// ListingStats summarises the stored listings of one user and provider.
type ListingStats struct {
	TotalListings   int64      `json:"total_listings"`
	LatestFirstSeen *time.Time `json:"latest_first_seen"`
}

// IsEmptyValue reports whether a details value carries no information.
func IsEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

// Missing reports whether key is absent or empty.
func (d Details) Missing(key string) bool {
	v, ok := d[key]
	return !ok || IsEmptyValue(v)
}
