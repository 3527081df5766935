package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/david/property-catalog/internal/models"
)

func TestClassifyMedia_Kind(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want models.MediaKind
	}{
		{"video path segment", "https://cdn.example.com/video/abc123", models.MediaVideo},
		{"videos path segment", "https://cdn.example.com/listing/videos/walkthrough", models.MediaVideo},
		{"video extension", "https://cdn.example.com/media/tour.MP4", models.MediaVideo},
		{"hls playlist", "https://cdn.example.com/stream/master.m3u8?token=1", models.MediaVideo},
		{"video keyword on media host", "https://storage.googleapis.com/bucket/property-video-123", models.MediaVideo},
		{"video keyword on unknown host", "https://example.com/property-video-thumb.jpg", models.MediaImage},
		{"plain image", "https://example.com/photos/front.jpg", models.MediaImage},
		{"unparseable", "not a url %%", models.MediaImage},
		{"empty", "", models.MediaImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMedia(tt.url).Kind)
		})
	}
}

func TestClassifyMedia_DeliveryURL(t *testing.T) {
	got := ClassifyMedia("https://res.cloudinary.com/demo/image/upload/v1712/site/a.jpg")
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/w_800,h_600,c_fill,g_center,q_auto,f_auto/v1712/site/a.jpg", got.DeliveryURL)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/v1712/site/a.jpg", got.URL)

	// Already transformed URLs are left alone
	pre := "https://res.cloudinary.com/demo/image/upload/w_400/a.jpg"
	assert.Equal(t, pre, ClassifyMedia(pre).DeliveryURL)

	unsplash := ClassifyMedia("https://images.unsplash.com/photo-123?ixid=abc").DeliveryURL
	assert.Contains(t, unsplash, "w=800")
	assert.Contains(t, unsplash, "h=600")
	assert.Contains(t, unsplash, "crop=center")
	assert.Contains(t, unsplash, "ixid=abc")

	drive := ClassifyMedia("https://drive.google.com/file/d/ABC_123-x/view?usp=sharing").DeliveryURL
	assert.Equal(t, "https://drive.google.com/thumbnail?id=ABC_123-x&sz=w800-h600", drive)

	plain := "https://example.com/photos/front.jpg"
	assert.Equal(t, plain, ClassifyMedia(plain).DeliveryURL)

	bad := "not a url %%"
	assert.Equal(t, bad, ClassifyMedia(bad).DeliveryURL)

	video := "https://cdn.example.com/videos/tour.mp4"
	assert.Equal(t, video, ClassifyMedia(video).DeliveryURL)
}

func TestOrderMedia_VideosFirst(t *testing.T) {
	in := []models.Media{
		{URL: "i1", Kind: models.MediaImage},
		{URL: "v1", Kind: models.MediaVideo},
		{URL: "i2", Kind: models.MediaImage},
		{URL: "v2", Kind: models.MediaVideo},
	}
	out := OrderMedia(in)

	var urls []string
	for _, m := range out {
		urls = append(urls, m.URL)
	}
	assert.Equal(t, []string{"v1", "v2", "i1", "i2"}, urls)
}

func TestSplitMediaCell(t *testing.T) {
	cell := "https://a.example/1.jpg | https://a.example/2.jpg\nhttps://a.example/1.jpg, ftp://skip.me/x"
	assert.Equal(t, []string{"https://a.example/1.jpg", "https://a.example/2.jpg"}, splitMediaCell(cell))
	assert.Empty(t, splitMediaCell(""))
}
