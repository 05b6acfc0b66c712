package video

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mssola/useragent"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

type clientInfo struct {
	Browser string
	OS      string
	Device  string
}

func parseUserAgent(raw string) clientInfo {
	if raw == "" {
		return clientInfo{Browser: "Unknown", OS: "Unknown", Device: "unknown"}
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return clientInfo{Browser: "Bot", OS: "Unknown", Device: "bot"}
	}

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Other"
	}

	osName := ua.OSInfo().Name
	if osName == "" {
		osName = "Other"
	}

	device := "desktop"
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		device = "tablet"
	case ua.Mobile():
		device = "mobile"
	}

	return clientInfo{Browser: browser, OS: osName, Device: device}
}
