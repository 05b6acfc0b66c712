package playback

import (
	"context"
	"time"
)

// VideoEntry is a read-only projection of a catalog video as held by the queue.
type VideoEntry struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SourceURL    string    `json:"sourceUrl"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	Duration     *string   `json:"duration"`
	OrderKey     *int      `json:"orderKey"`
	Views        int64     `json:"views"`
	WatchTime    int64     `json:"watchTime"`
	UserID       *string   `json:"userId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// VideoLister returns the catalog sorted by order key ascending (nulls last),
// then creation time descending. Callers trust that order.
type VideoLister interface {
	ListVideos(ctx context.Context) ([]VideoEntry, error)
}
