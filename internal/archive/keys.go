package archive

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// SnapshotURL builds the replay URL for a record on the archive host.
func SnapshotURL(host string, rec IndexRecord) string {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return fmt.Sprintf("%s/web/%s/%s", host, rec.Timestamp, rec.URL)
}

// SinkKey returns the blob key for a record:
// <registrable-domain>/<timestamp>_<url with "/" replaced by "_">.
func SinkKey(rec IndexRecord) (string, error) {
	domain, err := RegistrableDomain(rec.URL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s_%s", domain, rec.Timestamp, strings.ReplaceAll(rec.URL, "/", "_")), nil
}

// RegistrableDomain extracts the eTLD+1 of a scheme-less or absolute URL.
// Hosts that are themselves public suffixes, IPs or single labels are
// returned as-is.
func RegistrableDomain(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return domain, nil
}
