package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mirrorfeed/models"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "empty string",
			text:     "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "simple text",
			text:     "hello world",
			expected: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, models.Fingerprint(tt.text))
			// Deterministic
			assert.Equal(t, models.Fingerprint(tt.text), models.Fingerprint(tt.text))
		})
	}
}

func TestWithText(t *testing.T) {
	post := models.Post{Id: "1", PlainText: "old"}
	updated := post.WithText("new")

	assert.Equal(t, "new", updated.PlainText)
	assert.Equal(t, models.Fingerprint("new"), updated.ContentFingerprint)
	// Original untouched
	assert.Equal(t, "old", post.PlainText)
}

func TestDiff(t *testing.T) {
	unchanged := models.Post{Id: "a"}.WithText("same")
	edited := models.Post{Id: "b"}.WithText("before")
	editedAfter := models.Post{Id: "b"}.WithText("after")
	added := models.Post{Id: "c"}.WithText("new post")

	old := map[string]models.Post{"a": unchanged, "b": edited}
	updated := map[string]models.Post{"a": unchanged, "b": editedAfter, "c": added}

	changed := models.Diff(old, updated)

	ids := make([]string, 0, len(changed))
	for _, p := range changed {
		ids = append(ids, p.Id)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		{Id: "old", PostedAt: base},
		{Id: "newest", PostedAt: base.Add(2 * time.Hour)},
		{Id: "mid", PostedAt: base.Add(time.Hour)},
	}

	models.SortNewestFirst(posts)

	assert.Equal(t, "newest", posts[0].Id)
	assert.Equal(t, "mid", posts[1].Id)
	assert.Equal(t, "old", posts[2].Id)
}
