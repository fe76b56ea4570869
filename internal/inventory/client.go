package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dealerhub-api/internal/model"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "dealerhub-sync/1.0"
	maxBodyBytes     = 8 << 20
)

// Profile describes how one provider shapes its search and detail endpoints.
type Profile struct {
	Provider   model.Provider
	BaseURL    string
	SearchPath string
	DetailPath string // contains one %s for the escaped listing id
	Accept     string

	PageParam      string
	SizeParam      string
	SortFieldParam string
	SortOrderParam string
	SortFields     map[SortField]string
	SortOrders     map[SortOrder]string

	// ListKeys are tried in order when the search response is an object.
	ListKeys []string
	// DetailKeys are tried in order to unwrap a detail response.
	DetailKeys []string
	// DetailPageURL links back to the public listing page; contains one %s.
	DetailPageURL string
}

// MobileDeProfile returns the mobile.de Search API profile.
func MobileDeProfile(baseURL string) Profile {
	return Profile{
		Provider:       model.ProviderMobileDe,
		BaseURL:        baseURL,
		SearchPath:     "/search-api/search",
		DetailPath:     "/search-api/ad/%s",
		Accept:         "application/vnd.de.mobile.api+json",
		PageParam:      "page.number",
		SizeParam:      "page.size",
		SortFieldParam: "sort.field",
		SortOrderParam: "sort.order",
		SortFields: map[SortField]string{
			SortByModified: "modificationTime",
			SortByCreated:  "creationTime",
		},
		SortOrders: map[SortOrder]string{
			SortDescending: "DESCENDING",
			SortAscending:  "ASCENDING",
		},
		ListKeys:      []string{"ads", "items", "results"},
		DetailKeys:    []string{"ad", "item"},
		DetailPageURL: "https://suchen.mobile.de/fahrzeuge/details.html?id=%s",
	}
}

// AutoScout24Profile returns the AutoScout24 listing API profile.
func AutoScout24Profile(baseURL string) Profile {
	return Profile{
		Provider:       model.ProviderAutoScout24,
		BaseURL:        baseURL,
		SearchPath:     "/listings",
		DetailPath:     "/listings/%s",
		Accept:         "application/json",
		PageParam:      "page",
		SizeParam:      "size",
		SortFieldParam: "sort",
		SortOrderParam: "order",
		SortFields: map[SortField]string{
			SortByModified: "modifiedDate",
			SortByCreated:  "createdDate",
		},
		SortOrders: map[SortOrder]string{
			SortDescending: "desc",
			SortAscending:  "asc",
		},
		ListKeys:      []string{"listings", "items", "results", "data"},
		DetailKeys:    []string{"listing", "data"},
		DetailPageURL: "https://www.autoscout24.de/angebote/%s",
	}
}

// HTTPOptions tunes the HTTP transport of an HTTPSource.
type HTTPOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// HTTPSource implements Source over a JSON HTTP API described by a Profile.
type HTTPSource struct {
	profile   Profile
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewHTTPSource constructs an HTTPSource with a shared HTTP client.
func NewHTTPSource(profile Profile, opts HTTPOptions) (*HTTPSource, error) {
	base := strings.TrimSpace(profile.BaseURL)
	if base == "" {
		return nil, errors.New("inventory base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid inventory base URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &HTTPSource{
		profile:   profile,
		baseURL:   strings.TrimRight(base, "/"),
		client:    &http.Client{Timeout: timeout},
		userAgent: ua,
	}, nil
}

// Profile returns the provider profile this source was built with.
func (s *HTTPSource) Profile() Profile {
	return s.profile
}

// ListPage fetches one page of listing summaries.
func (s *HTTPSource) ListPage(ctx context.Context, creds Credentials, page, size int, field SortField, order SortOrder) ([]Item, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if size < 1 || size > MaxPageSize {
		return nil, fmt.Errorf("page size must be between 1 and %d, got %d", MaxPageSize, size)
	}

	params := url.Values{}
	params.Set(s.profile.PageParam, strconv.Itoa(page))
	params.Set(s.profile.SizeParam, strconv.Itoa(size))
	if v, ok := s.profile.SortFields[field]; ok {
		params.Set(s.profile.SortFieldParam, v)
	}
	if v, ok := s.profile.SortOrders[order]; ok {
		params.Set(s.profile.SortOrderParam, v)
	}

	body, err := s.get(ctx, creds, s.baseURL+s.profile.SearchPath+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return s.parseList(body)
}

// FetchDetail fetches a single listing by its provider id.
func (s *HTTPSource) FetchDetail(ctx context.Context, creds Credentials, listingID string) (Item, error) {
	id := strings.TrimSpace(listingID)
	if id == "" {
		return nil, errors.New("listing id is required")
	}

	body, err := s.get(ctx, creds, s.baseURL+fmt.Sprintf(s.profile.DetailPath, url.PathEscape(id)))
	if err != nil {
		return nil, err
	}

	raw, err := decode(body)
	if err != nil {
		return nil, fmt.Errorf("detail payload parse: %w", err)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.New("detail payload is not an object")
	}
	for _, key := range s.profile.DetailKeys {
		if inner, ok := obj[key].(map[string]interface{}); ok {
			return Item(inner), nil
		}
	}
	return Item(obj), nil
}

func (s *HTTPSource) get(ctx context.Context, creds Credentials, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	req.Header.Set("Accept", s.profile.Accept)
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamRequestError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			URL:        displayURL(req.URL),
		}
	}
	return body, nil
}

func (s *HTTPSource) parseList(body []byte) ([]Item, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	raw, err := decode(body)
	if err != nil {
		return nil, fmt.Errorf("search payload parse: %w", err)
	}

	var list []interface{}
	switch v := raw.(type) {
	case []interface{}:
		list = v
	case map[string]interface{}:
		found := false
		for _, key := range s.profile.ListKeys {
			if entry, present := v[key]; present {
				list, _ = entry.([]interface{})
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New("search payload has no listing array")
		}
	case nil:
		return nil, nil
	default:
		return nil, errors.New("search payload is neither an array nor an object")
	}

	// Non-object entries stay in place as empty items so the page keeps its
	// upstream length; the sync rejects them for having no listing id.
	items := make([]Item, len(list))
	for i, entry := range list {
		if obj, ok := entry.(map[string]interface{}); ok {
			items[i] = Item(obj)
		} else {
			items[i] = Item{}
		}
	}
	return items, nil
}

// decode keeps numbers as json.Number so large numeric ids survive intact.
func decode(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// displayURL drops any userinfo before a URL ends up in an error message.
func displayURL(u *url.URL) string {
	c := *u
	c.User = nil
	return c.String()
}

var _ Source = (*HTTPSource)(nil)
