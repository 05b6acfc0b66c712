package video

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/vpplayer/vpplayer/internal/database"
	"github.com/vpplayer/vpplayer/internal/metrics"
	"github.com/vpplayer/vpplayer/internal/playback"
)

// The catalog order lives here and nowhere else: explicit order keys first,
// ascending; unkeyed videos after them, newest first.
const listVideosQuery = `SELECT id, title, file_key, thumbnail_key, duration, order_key, views, watch_time, user_id, created_at, updated_at
	FROM videos
	ORDER BY order_key ASC NULLS LAST, created_at DESC`

// Store reads the catalog and turns object keys into presigned locators.
type Store struct {
	db      database.DBTX
	storage ObjectStorage
	cache   ListCache
}

func NewStore(db database.DBTX, s ObjectStorage, cache ListCache) *Store {
	if cache == nil {
		cache = noopCache{}
	}
	return &Store{db: db, storage: s, cache: cache}
}

// ListVideos returns the catalog in queue order. Cache failures degrade to a
// database read.
func (s *Store) ListVideos(ctx context.Context) ([]playback.VideoEntry, error) {
	var cached []playback.VideoEntry
	hit, err := s.cache.GetVideoList(ctx, &cached)
	if err != nil {
		slog.Warn("video: cache read failed", "error", err)
	}
	metrics.ObserveCache(hit)
	if hit {
		return cached, nil
	}

	rows, err := s.db.Query(ctx, listVideosQuery)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	entries := make([]playback.VideoEntry, 0)
	for rows.Next() {
		entry, err := s.scanEntry(ctx, rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	if err := s.cache.SetVideoList(ctx, entries); err != nil {
		slog.Warn("video: cache write failed", "error", err)
	}
	return entries, nil
}

// GetVideo returns one catalog entry or ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, id string) (playback.VideoEntry, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, title, file_key, thumbnail_key, duration, order_key, views, watch_time, user_id, created_at, updated_at
		 FROM videos WHERE id = $1`, id)
	entry, err := s.scanEntry(ctx, row)
	if err != nil {
		if isNoRows(err) {
			return playback.VideoEntry{}, ErrNotFound
		}
		return playback.VideoEntry{}, err
	}
	return entry, nil
}

func (s *Store) scanEntry(ctx context.Context, row pgx.Row) (playback.VideoEntry, error) {
	var e playback.VideoEntry
	var fileKey string
	var thumbnailKey *string
	if err := row.Scan(&e.ID, &e.Title, &fileKey, &thumbnailKey, &e.Duration, &e.OrderKey,
		&e.Views, &e.WatchTime, &e.UserID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return e, fmt.Errorf("scan video: %w", err)
	}

	sourceURL, err := s.storage.GenerateDownloadURL(ctx, fileKey, downloadURLExpiry)
	if err != nil {
		return e, fmt.Errorf("presign video %s: %w", e.ID, err)
	}
	e.SourceURL = sourceURL

	if thumbnailKey != nil {
		if u, err := s.storage.GenerateDownloadURL(ctx, *thumbnailKey, downloadURLExpiry); err == nil {
			e.ThumbnailURL = &u
		} else {
			slog.Warn("video: failed to presign thumbnail", "video_id", e.ID, "error", err)
		}
	}
	return e, nil
}

// invalidate drops the cached catalog after an admin write.
func (s *Store) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateVideoList(ctx); err != nil {
		slog.Warn("video: cache invalidation failed", "error", err)
	}
}

var _ playback.VideoLister = (*Store)(nil)
