// Package thread reconstructs authored-thread structure over batches of
// posts. Mirror sources never state thread membership outright; it is
// inferred from continuation markers and self-replies, and the root of each
// run is recovered retroactively here.
package thread

import (
	"sort"

	"mirrorfeed/models"
)

// AssignThreadIDs tags thread membership over a batch delivered in reverse
// chronological order. The batch is scanned oldest to newest: when a run of
// thread members begins, the post immediately before the run is the one
// that started the thread, so it is retroactively marked as root and its id
// becomes the run's thread id. If the oldest post in the batch is already
// mid-thread there is no preceding post inside the window; that post is
// synthesized into a root using its own id. Returns the batch re-sorted
// newest first.
//
// Guarantees on output: IsThreadRoot implies IsInThread, and ThreadId is
// set exactly on posts with IsInThread.
func AssignThreadIDs(posts []models.Post) []models.Post {
	tagged := make([]models.Post, len(posts))
	copy(tagged, posts)

	sort.SliceStable(tagged, func(i, j int) bool {
		return tagged[i].PostedAt.Before(tagged[j].PostedAt)
	})

	currentThread := ""
	for i := range tagged {
		if !tagged[i].IsInThread {
			currentThread = ""
			tagged[i].IsThreadRoot = false
			tagged[i].ThreadId = ""
			continue
		}

		if currentThread == "" {
			switch {
			case tagged[i].IsThreadRoot:
				// The source marked this post as the starter itself
				currentThread = tagged[i].Id
			case i == 0:
				// Thread already in progress at the window boundary;
				// synthesize a root from the oldest member we have
				tagged[i].IsThreadRoot = true
				currentThread = tagged[i].Id
			default:
				// The post before the run started the thread
				tagged[i-1].IsThreadRoot = true
				tagged[i-1].IsInThread = true
				tagged[i-1].ThreadId = tagged[i-1].Id
				currentThread = tagged[i-1].Id
			}
		}

		tagged[i].ThreadId = currentThread
	}

	sort.SliceStable(tagged, func(i, j int) bool {
		return tagged[i].PostedAt.After(tagged[j].PostedAt)
	})

	return tagged
}

// OrderForDisplay reorders a feed so each thread reads top to bottom in
// authored order while the feed stays newest-conversation-first. Standalone
// posts keep their given position; every contiguous run of posts sharing a
// ThreadId is replaced in place by that run sorted oldest first. Preserves
// the multiset of posts and is idempotent for stable thread tags.
func OrderForDisplay(posts []models.Post) []models.Post {
	ordered := make([]models.Post, 0, len(posts))

	i := 0
	for i < len(posts) {
		if !posts[i].IsInThread || posts[i].ThreadId == "" {
			ordered = append(ordered, posts[i])
			i++
			continue
		}

		j := i
		for j < len(posts) && posts[j].ThreadId == posts[i].ThreadId {
			j++
		}

		run := make([]models.Post, j-i)
		copy(run, posts[i:j])
		sort.SliceStable(run, func(a, b int) bool {
			return run[a].PostedAt.Before(run[b].PostedAt)
		})

		ordered = append(ordered, run...)
		i = j
	}

	return ordered
}
