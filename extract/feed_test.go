package extract_test

import (
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"

	"mirrorfeed/extract"
	"mirrorfeed/models"
)

func TestFromFeedItem(t *testing.T) {
	fetchedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	publishedAt := time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		item  *gofeed.Item
		check func(t *testing.T, post models.Post)
	}{
		{
			name: "plain post",
			item: &gofeed.Item{
				Title:           "Just some text",
				Link:            "https://mirror.example.net/somehandle/status/100",
				Description:     "<p>Just some text</p>",
				PublishedParsed: &publishedAt,
			},
			check: func(t *testing.T, post models.Post) {
				assert.Equal(t, "100", post.Id)
				assert.Equal(t, "somehandle", post.AuthorHandle)
				assert.Equal(t, "Just some text", post.PlainText)
				assert.Equal(t, "<p>Just some text</p>", post.RichText)
				assert.True(t, publishedAt.Equal(post.PostedAt))
				assert.Equal(t, models.Fingerprint("Just some text"), post.ContentFingerprint)
				assert.False(t, post.IsInThread)
				assert.False(t, post.IsReply)
			},
		},
		{
			name: "reply title convention",
			item: &gofeed.Item{
				Title:           "R to @Other: sure thing",
				Link:            "https://mirror.example.net/somehandle/status/101",
				Description:     "sure thing",
				PublishedParsed: &publishedAt,
			},
			check: func(t *testing.T, post models.Post) {
				assert.True(t, post.IsReply)
				assert.Equal(t, "other", post.ReplyToHandle)
				assert.False(t, post.IsInThread)
			},
		},
		{
			name: "self reply counts as thread continuation",
			item: &gofeed.Item{
				Title:           "R to @SomeHandle: part two",
				Link:            "https://mirror.example.net/somehandle/status/102",
				Description:     "part two",
				PublishedParsed: &publishedAt,
			},
			check: func(t *testing.T, post models.Post) {
				assert.True(t, post.IsReply)
				assert.Equal(t, "somehandle", post.ReplyToHandle)
				assert.True(t, post.IsInThread)
			},
		},
		{
			name: "continuation phrase marks membership",
			item: &gofeed.Item{
				Title:           "long story",
				Link:            "https://mirror.example.net/somehandle/status/103",
				Description:     "long story... Show this thread",
				PublishedParsed: &publishedAt,
			},
			check: func(t *testing.T, post models.Post) {
				assert.True(t, post.IsInThread)
				assert.False(t, post.IsThreadRoot)
			},
		},
		{
			name: "embedded signal elements",
			item: &gofeed.Item{
				Title:           "starter",
				Link:            "https://mirror.example.net/somehandle/status/104",
				Description:     `<div class="thread-start">starter</div>`,
				PublishedParsed: &publishedAt,
			},
			check: func(t *testing.T, post models.Post) {
				assert.True(t, post.IsThreadRoot)
				assert.True(t, post.IsInThread)
			},
		},
		{
			name: "missing published date falls back to fetch time",
			item: &gofeed.Item{
				Title:       "undated",
				Link:        "https://mirror.example.net/somehandle/status/105",
				Description: "undated",
			},
			check: func(t *testing.T, post models.Post) {
				assert.True(t, fetchedAt.Equal(post.PostedAt))
			},
		},
		{
			name: "attachments from embedded markup",
			item: &gofeed.Item{
				Title:           "with media",
				Link:            "https://mirror.example.net/somehandle/status/106",
				Description:     `<p>with media</p><img src="https://mirror.example.net/pic/media%2Fabc.jpg" alt="a cat"/><video src="https://video.twimg.com/amplify_video/1/vid/clip.mp4"></video>`,
				PublishedParsed: &publishedAt,
			},
			check: func(t *testing.T, post models.Post) {
				assert.Len(t, post.Attachments, 2)
				assert.Equal(t, models.MediaImage, post.Attachments[0].Kind)
				assert.Equal(t, "a cat", post.Attachments[0].AltText)
				assert.Equal(t, models.MediaVideo, post.Attachments[1].Kind)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := extract.FromFeedItem(tt.item, "@SomeHandle", fetchedAt)

			assert.Equal(t, fetchedAt, post.FetchedAt)
			assert.NotEmpty(t, post.Id)
			tt.check(t, post)
		})
	}
}
