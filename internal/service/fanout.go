package service

import (
	"fmt"
	"net/url"
	"strings"

	"dealerhub-api/internal/inventory"
	"dealerhub-api/internal/model"
	"dealerhub-api/pkg/uid"
)

// DefaultImageBackground is applied to every image job.
const DefaultImageBackground = "white"

// FanoutBuilder derives the image and social jobs for a newly seen listing.
type FanoutBuilder struct {
	platforms      []string
	detailPageURLs map[model.Provider]string
	newID          func() string
}

// NewFanoutBuilder creates a builder posting to platforms. detailPageURLs maps a
// provider to a public listing URL pattern with one %s, used when a payload
// carries no link of its own.
func NewFanoutBuilder(platforms []string, detailPageURLs map[model.Provider]string) *FanoutBuilder {
	return &FanoutBuilder{
		platforms:      platforms,
		detailPageURLs: detailPageURLs,
		newID:          uid.New,
	}
}

// Platforms returns the configured social platforms.
func (b *FanoutBuilder) Platforms() []string {
	return b.platforms
}

// Build returns one image job per stored image, the first flagged for the logo
// overlay, and one social post job per platform.
func (b *FanoutBuilder) Build(l *model.Listing, ex inventory.Extracted) ([]model.ImageProcessingJob, []model.SocialPostJob) {
	images := l.Images
	if len(images) > model.MaxListingImages {
		images = images[:model.MaxListingImages]
	}

	imageJobs := make([]model.ImageProcessingJob, 0, len(images))
	for i, imageURL := range images {
		imageJobs = append(imageJobs, model.ImageProcessingJob{
			ID:        b.newID(),
			UserID:    l.UserID,
			Provider:  l.Provider,
			ListingID: l.ListingID,
			ImageURL:  imageURL,
			Position:  i,
			Options:   model.ImageOptions{Background: DefaultImageBackground, Logo: i == 0},
			Status:    model.JobQueued,
			CreatedAt: l.FirstSeen,
		})
	}

	payload := model.SocialPayload{
		Caption: Caption(ex),
		Link:    b.link(l, ex),
	}
	posts := make([]model.SocialPostJob, 0, len(b.platforms))
	for _, platform := range b.platforms {
		p := payload
		p.Images = append([]string{}, images...)
		posts = append(posts, model.SocialPostJob{
			ID:        b.newID(),
			UserID:    l.UserID,
			Provider:  l.Provider,
			ListingID: l.ListingID,
			Platform:  platform,
			Payload:   p,
			Status:    model.JobQueued,
			CreatedAt: l.FirstSeen,
		})
	}
	return imageJobs, posts
}

// Caption builds the post text from make and model.
func Caption(ex inventory.Extracted) string {
	if c := strings.TrimSpace(ex.Make + " " + ex.Model); c != "" {
		return c
	}
	if ex.Title != "" {
		return ex.Title
	}
	return "New vehicle in stock"
}

func (b *FanoutBuilder) link(l *model.Listing, ex inventory.Extracted) string {
	if ex.DetailURL != "" {
		return ex.DetailURL
	}
	if pattern, ok := b.detailPageURLs[l.Provider]; ok && pattern != "" {
		return fmt.Sprintf(pattern, url.QueryEscape(l.ListingID))
	}
	return ""
}
