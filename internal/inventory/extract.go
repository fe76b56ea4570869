package inventory

import (
	"encoding/json"
	"strconv"
	"strings"

	"dealerhub-api/internal/model"
)

// Extracted holds the fields the sync pipeline reads out of an upstream payload.
// Any of them may be empty when the payload does not carry it.
type Extracted struct {
	ListingID string
	Make      string
	Model     string
	Title     string
	DetailURL string
	Images    []string
}

// Field names are tried in order; the first non-empty value wins.
var (
	listingIDKeys = []string{"mobileAdId", "adId", "id", "listingId", "guid"}
	makeKeys      = []string{"make", "brand", "manufacturer"}
	modelKeys     = []string{"model", "modelDescription", "modelName"}
	titleKeys     = []string{"title", "headline"}
	detailURLKeys = []string{"detailPageUrl", "detailUrl", "url", "link", "href"}
	imageListKeys = []string{"images", "pictures", "photos", "media"}
	labelKeys     = []string{"localizedDescription", "localized", "name", "value", "description", "@key"}
	imageURLKeys  = []string{"url", "uri", "src", "href"}
	variantKeys   = []string{"representations", "sizes", "variants"}
)

// ListingID resolves the provider-assigned id of an item.
func ListingID(item Item) (string, bool) {
	for _, key := range listingIDKeys {
		if id := scalarText(item[key]); id != "" {
			return id, true
		}
	}
	return "", false
}

// Extract pulls a best-effort field set out of a summary or detail payload.
func Extract(item Item) Extracted {
	ex := Extracted{}
	ex.ListingID, _ = ListingID(item)

	scopes := []map[string]interface{}{item}
	if vehicle, ok := item["vehicle"].(map[string]interface{}); ok {
		scopes = append(scopes, vehicle)
	}

	ex.Make = firstText(scopes, makeKeys)
	ex.Model = firstText(scopes, modelKeys)
	ex.Title = firstText(scopes, titleKeys)
	if ex.Title == "" {
		ex.Title = strings.TrimSpace(ex.Make + " " + ex.Model)
	}
	for _, key := range detailURLKeys {
		if u := scalarText(item[key]); strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			ex.DetailURL = u
			break
		}
	}
	ex.Images = extractImages(item)
	return ex
}

// MergeItems overlays the non-empty fields of detail onto summary and adds the
// normalised make/model/title/detail_url keys. detail may be nil.
func MergeItems(summary, detail Item) model.Details {
	out := make(model.Details, len(summary)+len(detail)+4)
	for k, v := range summary {
		out[k] = v
	}
	for k, v := range detail {
		if !model.IsEmptyValue(v) {
			out[k] = v
		}
	}

	ex := Extract(Item(out))
	setIfPresent(out, "make", ex.Make)
	setIfPresent(out, "model", ex.Model)
	setIfPresent(out, "title", ex.Title)
	setIfPresent(out, "detail_url", ex.DetailURL)
	return out
}

func setIfPresent(d model.Details, key, value string) {
	if value != "" {
		d[key] = value
	}
}

func firstText(scopes []map[string]interface{}, keys []string) string {
	for _, key := range keys {
		for _, scope := range scopes {
			if v := scalarText(scope[key]); v != "" {
				return v
			}
		}
	}
	return ""
}

// scalarText renders strings, numbers and labelled objects as trimmed text.
func scalarText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]interface{}:
		for _, key := range labelKeys {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func extractImages(item Item) []string {
	var entries []interface{}
	for _, key := range imageListKeys {
		if list, ok := item[key].([]interface{}); ok && len(list) > 0 {
			entries = list
			break
		}
	}

	seen := make(map[string]bool, len(entries))
	images := make([]string, 0, len(entries))
	for _, entry := range entries {
		u := normalizeImageURL(bestImageURL(entry))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		images = append(images, u)
		if len(images) == model.MaxListingImages {
			break
		}
	}
	return images
}

// bestImageURL picks the highest-resolution variant of one image entry.
func bestImageURL(entry interface{}) string {
	switch t := entry.(type) {
	case string:
		return t
	case map[string]interface{}:
		for _, key := range variantKeys {
			if u := bestVariant(t[key], false); u != "" {
				return u
			}
		}
		// The entry itself may be a size map, but only named labels count there.
		if u := bestVariant(t, true); u != "" {
			return u
		}
		for _, key := range imageURLKeys {
			if s, ok := t[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// bestVariant handles both a list of {size, url} objects and a map of size label to URL.
// With labelsOnly, map keys must be named size labels; pixel keys are ignored.
// Values that do not look like URLs never win.
func bestVariant(v interface{}, labelsOnly bool) string {
	best, bestRank := "", -1
	consider := func(label string, width interface{}, u string) {
		if !looksLikeURL(u) {
			return
		}
		rank := sizeRank(label)
		if w := scalarText(width); w != "" {
			rank = sizeRank(w)
		}
		if rank > bestRank {
			best, bestRank = u, rank
		}
	}

	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			obj, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			label, _ := obj["size"].(string)
			if label == "" {
				label, _ = obj["name"].(string)
			}
			consider(label, obj["width"], firstURL(obj))
		}
	case map[string]interface{}:
		for label, e := range t {
			if sizeRank(label) < 0 {
				continue
			}
			if _, named := sizeLabels[strings.ToUpper(strings.TrimSpace(label))]; labelsOnly && !named {
				continue
			}
			switch u := e.(type) {
			case string:
				consider(label, nil, u)
			case map[string]interface{}:
				consider(label, u["width"], firstURL(u))
			}
		}
	}
	return best
}

// looksLikeURL accepts absolute, scheme-relative and bare host/path URLs.
func looksLikeURL(u string) bool {
	u = strings.TrimSpace(u)
	if u == "" || strings.ContainsAny(u, " \t\n") {
		return false
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "//") {
		return true
	}
	slash := strings.Index(u, "/")
	return slash > 0 && strings.Contains(u[:slash], ".")
}

func firstURL(obj map[string]interface{}) string {
	for _, key := range imageURLKeys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

var sizeLabels = map[string]int{
	"THUMB": 0, "THUMBNAIL": 0,
	"XS": 1, "S": 2, "SMALL": 2,
	"M": 3, "MEDIUM": 3,
	"L": 4, "LARGE": 4,
	"XL": 5, "XXL": 6, "XXXL": 7,
	"ORIGINAL": 8, "FULL": 8,
}

// sizeRank orders size labels; pixel sizes like "1024" or "1024x768" outrank all labels.
// Unknown labels rank -1.
func sizeRank(label string) int {
	label = strings.ToUpper(strings.TrimSpace(label))
	if r, ok := sizeLabels[label]; ok {
		return r
	}
	digits := label
	if i := strings.IndexAny(label, "X*"); i > 0 {
		digits = label[:i]
	}
	if w, err := strconv.Atoi(digits); err == nil && w > 0 {
		return 100 + w
	}
	return -1
}

// normalizeImageURL adds a scheme to bare URIs and requests the largest
// rendition from the mobile.de image CDN.
func normalizeImageURL(u string) string {
	u = strings.TrimSpace(u)
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "//"):
		u = "https:" + u
	case !strings.Contains(u, "://"):
		u = "https://" + u
	}
	if strings.Contains(u, "img.classistatic.de/") && !strings.Contains(u, "rule=") {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "rule=mo-1600.jpg"
	}
	return u
}
