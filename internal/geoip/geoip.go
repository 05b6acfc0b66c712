// Package geoip attributes playback views to a country and city.
package geoip

import (
	"log/slog"
	"net/netip"

	"github.com/oschwald/maxminddb-golang"
)

// Locator wraps an optional MaxMind City database. A Locator without a
// database answers every lookup with empty strings.
type Locator struct {
	db       *maxminddb.Reader
	language string
}

type cityRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// Open never fails: a missing or unreadable database only disables lookups.
func Open(path string) *Locator {
	l := &Locator{language: "en"}
	if path == "" {
		return l
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		slog.Warn("geoip: database unavailable, view locations disabled", "path", path, "error", err)
		return l
	}
	slog.Info("geoip: loaded database", "path", path, "type", db.Metadata.DatabaseType)
	l.db = db
	return l
}

func (l *Locator) Enabled() bool {
	return l != nil && l.db != nil
}

// Lookup resolves ip to an ISO country code and a city name. Private and
// loopback addresses never resolve.
func (l *Locator) Lookup(ip string) (country, city string) {
	if !l.Enabled() {
		return "", ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil || !routable(addr) {
		return "", ""
	}

	var rec cityRecord
	if err := l.db.Lookup(addr.AsSlice(), &rec); err != nil {
		slog.Debug("geoip: lookup failed", "error", err)
		return "", ""
	}
	city = rec.City.Names[l.language]
	if city == "" {
		city = rec.City.Names["en"]
	}
	return rec.Country.ISOCode, city
}

func (l *Locator) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.db.Close()
}

func routable(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !(addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsMulticast())
}
