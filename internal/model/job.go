package model

import "time"

// JobStatus is the processing state of a fan-out job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobSuccess    JobStatus = "success"
	JobFailed     JobStatus = "failed"
)

// ImageOptions controls how the image worker renders a listing photo.
type ImageOptions struct {
	Background string `json:"background"`
	Logo       bool   `json:"logo"`
}

// ImageProcessingJob asks the image worker to enhance one listing photo.
type ImageProcessingJob struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Provider  Provider     `json:"provider"`
	ListingID string       `json:"listing_id"`
	ImageURL  string       `json:"image_url"`
	Position  int          `json:"position"`
	Options   ImageOptions `json:"options"`
	Status    JobStatus    `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// SocialPayload is the content of a social post.
type SocialPayload struct {
	Caption string   `json:"caption"`
	Images  []string `json:"images"`
	Link    string   `json:"link"`
}

// SocialPostJob asks the social worker to publish a listing on one platform.
type SocialPostJob struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Provider  Provider      `json:"provider"`
	ListingID string        `json:"listing_id"`
	Platform  string        `json:"platform"`
	Payload   SocialPayload `json:"payload"`
	Status    JobStatus     `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// JobCounts is the number of queued fan-out jobs per kind.
type JobCounts struct {
	ImageJobs  int64 `json:"image_jobs"`
	SocialJobs int64 `json:"social_jobs"`
}
