package validate

import (
	"fmt"
	"strings"
)

// Text field length limits, shared with the frontend through /api/limits.
const (
	MaxTitleLength       = 500
	MaxCommentBodyLength = 5000
	MaxDisplayNameLength = 100
	MaxFilterTermLength  = 200
	MaxOrderKey          = 1_000_000
)

var allowedVideoTypes = map[string]string{
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
	"video/ogg":  ".ogv",
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Title(s string) string {
	if strings.TrimSpace(s) == "" {
		return "title is required"
	}
	return checkLen(s, MaxTitleLength, "title")
}

func CommentBody(s string) string {
	if strings.TrimSpace(s) == "" {
		return "comment is required"
	}
	return checkLen(s, MaxCommentBodyLength, "comment")
}

func DisplayName(s string) string {
	if strings.TrimSpace(s) == "" {
		return "display name is required"
	}
	return checkLen(s, MaxDisplayNameLength, "display name")
}

func FilterTerm(s string) string { return checkLen(s, MaxFilterTermLength, "filter term") }

func OrderKey(k int) string {
	if k < 0 || k > MaxOrderKey {
		return fmt.Sprintf("order key must be between 0 and %d", MaxOrderKey)
	}
	return ""
}

// VideoExtension maps an accepted video content type to its file extension.
func VideoExtension(contentType string) (string, bool) {
	ext, ok := allowedVideoTypes[strings.ToLower(contentType)]
	return ext, ok
}

func ImageExtension(contentType string) (string, bool) {
	ext, ok := allowedImageTypes[strings.ToLower(contentType)]
	return ext, ok
}

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"title":       MaxTitleLength,
		"commentBody": MaxCommentBodyLength,
		"displayName": MaxDisplayNameLength,
		"filterTerm":  MaxFilterTermLength,
		"orderKey":    MaxOrderKey,
	}
}
