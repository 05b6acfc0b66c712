package video

import (
	"context"
	"errors"
	"time"

	"github.com/vpplayer/vpplayer/internal/database"
)

var ErrNotFound = errors.New("video not found")

const (
	downloadURLExpiry = 1 * time.Hour
	uploadURLExpiry   = 30 * time.Minute
)

type ObjectStorage interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string, contentLength int64, expiry time.Duration) (string, error)
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// ListCache caches the presigned catalog. Implementations must treat a nil
// receiver or missing backend as a permanent miss.
type ListCache interface {
	GetVideoList(ctx context.Context, dst any) (bool, error)
	SetVideoList(ctx context.Context, v any) error
	InvalidateVideoList(ctx context.Context) error
}

// GeoLocator resolves a client IP to ISO country code and city name.
type GeoLocator interface {
	Lookup(ip string) (country, city string)
}

type Handler struct {
	db             database.DBTX
	store          *Store
	storage        ObjectStorage
	cache          ListCache
	geo            GeoLocator
	maxUploadBytes int64
}

func NewHandler(db database.DBTX, s ObjectStorage, cache ListCache, maxUploadBytes int64) *Handler {
	if cache == nil {
		cache = noopCache{}
	}
	return &Handler{
		db:             db,
		store:          NewStore(db, s, cache),
		storage:        s,
		cache:          cache,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) SetGeoLocator(g GeoLocator) {
	h.geo = g
}

// Store is the catalog reader handed to playback sessions.
func (h *Handler) Store() *Store {
	return h.store
}

type noopCache struct{}

func (noopCache) GetVideoList(context.Context, any) (bool, error) { return false, nil }
func (noopCache) SetVideoList(context.Context, any) error         { return nil }
func (noopCache) InvalidateVideoList(context.Context) error       { return nil }
