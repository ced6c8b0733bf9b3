package services

import (
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
)

// GeoIPService resolves the country of a client address. It reads a MaxMind
// country database when one is configured and falls back to a small built-in
// CIDR table otherwise.
type GeoIPService struct {
	reader        *geoip2.Reader
	countryRanges map[string][]net.IPNet
	mu            sync.RWMutex
}

func NewGeoIPService(dbPath string) *GeoIPService {
	g := &GeoIPService{countryRanges: make(map[string][]net.IPNet)}

	if dbPath != "" {
		reader, err := geoip2.Open(dbPath)
		if err == nil {
			g.reader = reader
			system.Info("GeoIP database loaded: %s", dbPath)
			return g
		}
		system.Warn("Failed to open GeoIP database %s: %v", dbPath, err)
	}

	g.loadFallbackData()
	return g
}

// CountryCode returns the ISO country code for ipStr, or "" for private,
// loopback and unknown addresses.
func (g *GeoIPService) CountryCode(ipStr string) string {
	ip := net.ParseIP(ipStr)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return ""
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.reader != nil {
		record, err := g.reader.Country(ip)
		if err != nil {
			system.Debug("GeoIP lookup for %s failed: %v", ipStr, err)
			return ""
		}
		return record.Country.IsoCode
	}

	for country, ranges := range g.countryRanges {
		for _, ipRange := range ranges {
			if ipRange.Contains(ip) {
				return country
			}
		}
	}

	return ""
}

// Close releases the database.
func (g *GeoIPService) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.reader == nil {
		return nil
	}
	err := g.reader.Close()
	g.reader = nil

	return err
}

// loadFallbackData loads a coarse, non-overlapping country table
func (g *GeoIPService) loadFallbackData() {
	g.mu.Lock()
	defer g.mu.Unlock()

	countryCIDRs := map[string][]string{
		"US": {"3.0.0.0/8", "4.0.0.0/8", "8.0.0.0/8", "12.0.0.0/8", "13.0.0.0/8"},
		"CN": {"36.0.0.0/8", "42.0.0.0/8", "60.0.0.0/8", "101.0.0.0/8"},
		"KR": {"14.32.0.0/11", "121.128.0.0/10", "175.192.0.0/10", "211.32.0.0/12"},
		"DE": {"46.0.0.0/8", "62.0.0.0/8", "77.0.0.0/8"},
		"BR": {"177.0.0.0/8", "179.0.0.0/8", "186.0.0.0/8", "189.0.0.0/8"},
		"GB": {"25.0.0.0/8"},
		"CA": {"24.0.0.0/8", "65.0.0.0/8"},
	}

	for country, cidrs := range countryCIDRs {
		ranges := make([]net.IPNet, 0, len(cidrs))
		for _, cidr := range cidrs {
			if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
				ranges = append(ranges, *ipNet)
			}
		}
		g.countryRanges[country] = ranges
	}

	system.Info("Loaded fallback GeoIP data for %d countries", len(g.countryRanges))
}
