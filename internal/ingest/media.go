package ingest

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/david/property-catalog/internal/models"
)

// Delivery variant requested from image hosts that support URL transformations.
const (
	deliveryWidth  = 800
	deliveryHeight = 600
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true, ".m4v": true,
	".avi": true, ".mkv": true, ".m3u8": true, ".3gp": true,
}

// Hosts that serve both images and videos from similar looking URLs.
var mediaHosts = []string{
	"res.cloudinary.com",
	"drive.google.com",
	"storage.googleapis.com",
	"firebasestorage.googleapis.com",
	"s3.amazonaws.com",
	"amazonaws.com",
	"imagekit.io",
}

var driveFileIDRegex = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)

// mediaRule is one predicate in the classification chain. Rules run in order
// and the first match decides the kind.
type mediaRule struct {
	name  string
	match func(u *url.URL, lower string) bool
	kind  models.MediaKind
}

var mediaRules = []mediaRule{
	{name: "video-path-segment", match: hasVideoSegment, kind: models.MediaVideo},
	{name: "video-extension", match: hasVideoExtension, kind: models.MediaVideo},
	{name: "video-on-media-host", match: isVideoOnMediaHost, kind: models.MediaVideo},
}

func hasVideoSegment(u *url.URL, lower string) bool {
	p := lower
	if u != nil {
		p = strings.ToLower(u.Path)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "video" || seg == "videos" {
			return true
		}
	}
	return false
}

func hasVideoExtension(u *url.URL, lower string) bool {
	p := lower
	if u != nil {
		p = strings.ToLower(u.Path)
	}
	return videoExtensions[path.Ext(p)]
}

func isVideoOnMediaHost(u *url.URL, lower string) bool {
	if u == nil || !strings.Contains(lower, "video") {
		return false
	}
	return isMediaHost(u.Hostname())
}

func isMediaHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range mediaHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ClassifyMedia decides whether a URL is an image or a video and builds the
// URL the client should load. It never fails: anything unrecognized is an image.
func ClassifyMedia(raw string) models.Media {
	raw = strings.TrimSpace(raw)
	m := models.Media{URL: raw, Kind: models.MediaImage, DeliveryURL: raw}
	if raw == "" {
		return m
	}

	u, err := url.Parse(raw)
	if err != nil {
		u = nil
	}
	lower := strings.ToLower(raw)
	for _, rule := range mediaRules {
		if rule.match(u, lower) {
			m.Kind = rule.kind
			break
		}
	}

	if m.Kind == models.MediaImage && u != nil {
		m.DeliveryURL = imageDeliveryURL(u)
	}
	return m
}

// imageDeliveryURL requests a fixed-size, auto-quality, center-cropped variant
// from hosts that support it. Other hosts pass through unchanged.
func imageDeliveryURL(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "res.cloudinary.com":
		const marker = "/image/upload/"
		idx := strings.Index(u.Path, marker)
		if idx < 0 {
			return u.String()
		}
		rest := u.Path[idx+len(marker):]
		if strings.HasPrefix(rest, "w_") || strings.HasPrefix(rest, "c_") {
			return u.String()
		}
		out := *u
		out.Path = u.Path[:idx+len(marker)] + "w_800,h_600,c_fill,g_center,q_auto,f_auto/" + rest
		return out.String()

	case host == "images.unsplash.com":
		out := *u
		q := out.Query()
		q.Set("w", "800")
		q.Set("h", "600")
		q.Set("fit", "crop")
		q.Set("crop", "center")
		q.Set("auto", "format")
		q.Set("q", "80")
		out.RawQuery = q.Encode()
		return out.String()

	case host == "drive.google.com":
		id := u.Query().Get("id")
		if m := driveFileIDRegex.FindStringSubmatch(u.Path); len(m) == 2 {
			id = m[1]
		}
		if id == "" {
			return u.String()
		}
		return "https://drive.google.com/thumbnail?id=" + url.QueryEscape(id) + "&sz=w800-h600"
	}
	return u.String()
}

// OrderMedia puts videos ahead of images, keeping source order within each kind.
func OrderMedia(items []models.Media) []models.Media {
	out := make([]models.Media, 0, len(items))
	for _, m := range items {
		if m.Kind == models.MediaVideo {
			out = append(out, m)
		}
	}
	for _, m := range items {
		if m.Kind != models.MediaVideo {
			out = append(out, m)
		}
	}
	return out
}

// splitMediaCell splits a cell holding several URLs separated by commas, pipes or newlines.
func splitMediaCell(cell string) []string {
	fields := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ',' || r == '|' || r == '\n' || r == '\r' || r == ' ' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") || strings.HasPrefix(f, "//") {
			out = appendUnique(out, f)
		}
	}
	return out
}
