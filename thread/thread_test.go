package thread_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mirrorfeed/models"
	"mirrorfeed/thread"
)

func at(minutes int) time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func TestAssignThreadIDs(t *testing.T) {
	tests := []struct {
		name  string
		posts []models.Post
		check func(t *testing.T, tagged []models.Post)
	}{
		{
			name:  "empty batch",
			posts: nil,
			check: func(t *testing.T, tagged []models.Post) {
				assert.Empty(t, tagged)
			},
		},
		{
			name: "standalone posts stay untagged",
			posts: []models.Post{
				{Id: "b", PostedAt: at(10)},
				{Id: "a", PostedAt: at(0)},
			},
			check: func(t *testing.T, tagged []models.Post) {
				for _, p := range tagged {
					assert.False(t, p.IsInThread)
					assert.False(t, p.IsThreadRoot)
					assert.Empty(t, p.ThreadId)
				}
			},
		},
		{
			name: "preceding post becomes the root",
			posts: []models.Post{
				{Id: "reply2", PostedAt: at(20), IsInThread: true},
				{Id: "reply1", PostedAt: at(10), IsInThread: true},
				{Id: "starter", PostedAt: at(0)},
			},
			check: func(t *testing.T, tagged []models.Post) {
				byId := keyed(tagged)
				assert.True(t, byId["starter"].IsThreadRoot)
				assert.True(t, byId["starter"].IsInThread)
				assert.Equal(t, "starter", byId["starter"].ThreadId)
				assert.Equal(t, "starter", byId["reply1"].ThreadId)
				assert.Equal(t, "starter", byId["reply2"].ThreadId)
			},
		},
		{
			name: "oldest member at window boundary becomes synthetic root",
			posts: []models.Post{
				{Id: "reply", PostedAt: at(10), IsInThread: true},
				{Id: "oldest", PostedAt: at(0), IsInThread: true},
			},
			check: func(t *testing.T, tagged []models.Post) {
				byId := keyed(tagged)
				assert.True(t, byId["oldest"].IsThreadRoot)
				assert.Equal(t, "oldest", byId["oldest"].ThreadId)
				assert.Equal(t, "oldest", byId["reply"].ThreadId)
			},
		},
		{
			name: "source-marked root keeps its own id",
			posts: []models.Post{
				{Id: "reply", PostedAt: at(10), IsInThread: true},
				{Id: "root", PostedAt: at(5), IsInThread: true, IsThreadRoot: true},
				{Id: "before", PostedAt: at(0)},
			},
			check: func(t *testing.T, tagged []models.Post) {
				byId := keyed(tagged)
				assert.Equal(t, "root", byId["root"].ThreadId)
				assert.Equal(t, "root", byId["reply"].ThreadId)
				assert.False(t, byId["before"].IsInThread)
				assert.Empty(t, byId["before"].ThreadId)
			},
		},
		{
			name: "two separate runs get distinct thread ids",
			posts: []models.Post{
				{Id: "a", PostedAt: at(100), IsInThread: true},
				{Id: "b", PostedAt: at(90)},
				{Id: "c", PostedAt: at(80), IsInThread: true},
			},
			check: func(t *testing.T, tagged []models.Post) {
				// The gap at b splits the runs: b is pulled in as root of
				// a's thread while c roots its own single-member thread
				assert.Equal(t, "a", tagged[0].Id)
				assert.Equal(t, "b", tagged[0].ThreadId)
				assert.False(t, tagged[0].IsThreadRoot)

				assert.Equal(t, "b", tagged[1].Id)
				assert.True(t, tagged[1].IsThreadRoot)
				assert.True(t, tagged[1].IsInThread)
				assert.Equal(t, "b", tagged[1].ThreadId)

				assert.Equal(t, "c", tagged[2].Id)
				assert.True(t, tagged[2].IsThreadRoot)
				assert.Equal(t, "c", tagged[2].ThreadId)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tagged := thread.AssignThreadIDs(tt.posts)

			assert.Len(t, tagged, len(tt.posts))
			assertNewestFirst(t, tagged)
			for _, p := range tagged {
				if p.IsThreadRoot {
					assert.True(t, p.IsInThread, "root %s must be a member", p.Id)
				}
				assert.Equal(t, p.IsInThread, p.ThreadId != "", "thread id set iff member on %s", p.Id)
			}

			tt.check(t, tagged)
		})
	}
}

func TestAssignThreadIDsDoesNotMutateInput(t *testing.T) {
	posts := []models.Post{
		{Id: "reply", PostedAt: at(10), IsInThread: true},
		{Id: "starter", PostedAt: at(0)},
	}

	thread.AssignThreadIDs(posts)

	assert.False(t, posts[1].IsThreadRoot)
	assert.Empty(t, posts[1].ThreadId)
}

func TestOrderForDisplay(t *testing.T) {
	tagged := thread.AssignThreadIDs([]models.Post{
		{Id: "a", PostedAt: at(100), IsInThread: true},
		{Id: "b", PostedAt: at(90)},
		{Id: "c", PostedAt: at(80), IsInThread: true},
	})

	ordered := thread.OrderForDisplay(tagged)

	// Threads read top to bottom while the feed stays newest-first
	assert.Equal(t, []string{"b", "a", "c"}, ids(ordered))

	// Idempotent for stable tags
	assert.Equal(t, ordered, thread.OrderForDisplay(ordered))
}

func TestOrderForDisplayKeepsStandalonePositions(t *testing.T) {
	posts := []models.Post{
		{Id: "solo1", PostedAt: at(40)},
		{Id: "reply", PostedAt: at(30), IsInThread: true, ThreadId: "root"},
		{Id: "root", PostedAt: at(20), IsInThread: true, IsThreadRoot: true, ThreadId: "root"},
		{Id: "solo2", PostedAt: at(10)},
	}

	ordered := thread.OrderForDisplay(posts)

	assert.Equal(t, []string{"solo1", "root", "reply", "solo2"}, ids(ordered))
}

func keyed(posts []models.Post) map[string]models.Post {
	byId := make(map[string]models.Post, len(posts))
	for _, p := range posts {
		byId[p.Id] = p
	}
	return byId
}

func ids(posts []models.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Id)
	}
	return out
}

func assertNewestFirst(t *testing.T, posts []models.Post) {
	t.Helper()
	for i := 1; i < len(posts); i++ {
		assert.False(t, posts[i].PostedAt.After(posts[i-1].PostedAt), "posts must be newest first")
	}
}
