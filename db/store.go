package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"mirrorfeed/models"
)

// Store is the local row-store cache of posts, keyed by post id with a
// secondary index on (author_handle, posted_at)
type Store struct {
	db *sql.DB
}

func NewStore(database string) (*Store, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &Store{db: db}, nil
}

func (store *Store) Close() error {
	return store.db.Close()
}

// UpsertPost is the fingerprint-aware write path: a row is only updated
// when the content fingerprint changed, so refetching an unchanged post is
// a no-op and leaves updated_at alone. Atomic per post id. Reports whether
// the row was written.
func (store *Store) UpsertPost(ctx context.Context, post models.Post) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin error: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, "SELECT fingerprint FROM posts WHERE id = ?", post.Id).Scan(&existing)

	switch {
	case err == sql.ErrNoRows:
		if err := insertPost(ctx, tx, post); err != nil {
			return false, err
		}
	case err != nil:
		return false, fmt.Errorf("fingerprint lookup error: %w", err)
	case existing == post.ContentFingerprint:
		// Unchanged content, leave the row alone
		return false, tx.Commit()
	default:
		if err := updatePost(ctx, tx, post); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit error: %w", err)
	}
	return true, nil
}

// InsertOrReplacePost is the blind write path used when the caller does not
// care about churn. The pinned flag survives replacement.
func (store *Store) InsertOrReplacePost(ctx context.Context, post models.Post) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	attachments, err := json.Marshal(post.Attachments)
	if err != nil {
		return fmt.Errorf("attachments encode error: %w", err)
	}

	_, err = store.db.ExecContext(ctx, `
		INSERT INTO posts (
			id, author_handle, plain_text, rich_text, posted_at, fetched_at,
			permalink, author_avatar_url, is_thread_root, is_in_thread, thread_id,
			is_reply, reply_to_handle, reply_to_post_id, attachments,
			repost_count, favorite_count, pinned, fingerprint, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			author_handle = excluded.author_handle,
			plain_text = excluded.plain_text,
			rich_text = excluded.rich_text,
			posted_at = excluded.posted_at,
			fetched_at = excluded.fetched_at,
			permalink = excluded.permalink,
			author_avatar_url = excluded.author_avatar_url,
			is_thread_root = excluded.is_thread_root,
			is_in_thread = excluded.is_in_thread,
			thread_id = excluded.thread_id,
			is_reply = excluded.is_reply,
			reply_to_handle = excluded.reply_to_handle,
			reply_to_post_id = excluded.reply_to_post_id,
			attachments = excluded.attachments,
			repost_count = excluded.repost_count,
			favorite_count = excluded.favorite_count,
			fingerprint = excluded.fingerprint,
			updated_at = excluded.updated_at`,
		post.Id, post.AuthorHandle, post.PlainText, post.RichText,
		post.PostedAt.Unix(), post.FetchedAt.Unix(), post.Permalink,
		post.AuthorAvatarURL, post.IsThreadRoot, post.IsInThread,
		nullable(post.ThreadId), post.IsReply, nullable(post.ReplyToHandle),
		nullable(post.ReplyToPostId), string(attachments), post.RepostCount,
		post.FavoriteCount, post.IsPinned, post.ContentFingerprint,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

// StorePosts persists a batch. Permanent writes use the fingerprint-aware
// upsert; transient writes blindly insert-or-replace. Returns the number of
// rows actually written.
func (store *Store) StorePosts(ctx context.Context, posts []models.Post, permanent bool) (int, error) {
	stored := 0
	for _, post := range posts {
		if permanent {
			changed, err := store.UpsertPost(ctx, post)
			if err != nil {
				return stored, err
			}
			if changed {
				stored++
			}
			continue
		}
		if err := store.InsertOrReplacePost(ctx, post); err != nil {
			return stored, err
		}
		stored++
	}

	log.WithFields(log.Fields{
		"posts":     len(posts),
		"stored":    stored,
		"permanent": permanent,
	}).Debug("Stored posts")

	return stored, nil
}

// GetPostsSince returns cached posts for the handle with posted_at at or
// after since, newest first, capped at limit when limit > 0
func (store *Store) GetPostsSince(ctx context.Context, handle string, since time.Time, limit int) ([]models.Post, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(postColumns).From("posts")
	sb.Where(sb.Equal("author_handle", handle))
	if !since.IsZero() {
		sb.Where(sb.GreaterEqualThan("posted_at", since.Unix()))
	}
	sb.OrderBy("posted_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// GetLatestFetchTime returns the most recent fetched_at for the handle;
// zero time when the handle has no cached rows
func (store *Store) GetLatestFetchTime(ctx context.Context, handle string) (time.Time, error) {
	var fetchedAt int64
	err := store.db.QueryRowContext(ctx,
		"SELECT fetched_at FROM posts WHERE author_handle = ? ORDER BY fetched_at DESC LIMIT 1",
		handle).Scan(&fetchedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query error: %w", err)
	}
	return time.Unix(fetchedAt, 0).UTC(), nil
}

// GetLatestPost returns the newest cached post for the handle, or nil
func (store *Store) GetLatestPost(ctx context.Context, handle string) (*models.Post, error) {
	return store.getEdgePost(ctx, handle, "DESC")
}

// GetOldestPost returns the oldest cached post for the handle, or nil
func (store *Store) GetOldestPost(ctx context.Context, handle string) (*models.Post, error) {
	return store.getEdgePost(ctx, handle, "ASC")
}

func (store *Store) getEdgePost(ctx context.Context, handle string, direction string) (*models.Post, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(postColumns).From("posts")
	if handle != "" {
		sb.Where(sb.Equal("author_handle", handle))
	}
	if direction == "ASC" {
		sb.OrderBy("posted_at").Asc()
	} else {
		sb.OrderBy("posted_at").Desc()
	}
	sb.Limit(1)

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	posts, err := scanPosts(rows)
	if err != nil || len(posts) == 0 {
		return nil, err
	}
	return &posts[0], nil
}

// MarkPinned flags posts so they survive non-pinned cache sweeps
func (store *Store) MarkPinned(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ub := sqlbuilder.NewUpdateBuilder()
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	ub.Update("posts").Set(ub.Assign("pinned", 1)).Where(ub.In("id", values...))

	query, args := ub.BuildWithFlavor(sqlbuilder.SQLite)
	_, err := store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pin error: %w", err)
	}
	return nil
}

// DeleteNonPinned removes every cache row that is not pinned. Only invoked
// by the explicit cache-clear operation, never automatically.
func (store *Store) DeleteNonPinned(ctx context.Context) (int64, error) {
	deleteBuilder := sqlbuilder.NewDeleteBuilder()
	deleteBuilder.DeleteFrom("posts").Where(deleteBuilder.Equal("pinned", 0))

	query, args := deleteBuilder.BuildWithFlavor(sqlbuilder.SQLite)
	res, err := store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}

	deleted, _ := res.RowsAffected()
	log.WithFields(log.Fields{
		"deleted": deleted,
	}).Info("Cleared non-pinned cache rows")

	return deleted, nil
}

const postColumns = `id, author_handle, plain_text, rich_text, posted_at, fetched_at,
	permalink, author_avatar_url, is_thread_root, is_in_thread, thread_id,
	is_reply, reply_to_handle, reply_to_post_id, attachments,
	repost_count, favorite_count, pinned, fingerprint`

func insertPost(ctx context.Context, tx *sql.Tx, post models.Post) error {
	attachments, err := json.Marshal(post.Attachments)
	if err != nil {
		return fmt.Errorf("attachments encode error: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (
			id, author_handle, plain_text, rich_text, posted_at, fetched_at,
			permalink, author_avatar_url, is_thread_root, is_in_thread, thread_id,
			is_reply, reply_to_handle, reply_to_post_id, attachments,
			repost_count, favorite_count, pinned, fingerprint, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.Id, post.AuthorHandle, post.PlainText, post.RichText,
		post.PostedAt.Unix(), post.FetchedAt.Unix(), post.Permalink,
		post.AuthorAvatarURL, post.IsThreadRoot, post.IsInThread,
		nullable(post.ThreadId), post.IsReply, nullable(post.ReplyToHandle),
		nullable(post.ReplyToPostId), string(attachments), post.RepostCount,
		post.FavoriteCount, post.IsPinned, post.ContentFingerprint,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func updatePost(ctx context.Context, tx *sql.Tx, post models.Post) error {
	attachments, err := json.Marshal(post.Attachments)
	if err != nil {
		return fmt.Errorf("attachments encode error: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE posts SET
			author_handle = ?, plain_text = ?, rich_text = ?, posted_at = ?,
			fetched_at = ?, permalink = ?, author_avatar_url = ?,
			is_thread_root = ?, is_in_thread = ?, thread_id = ?, is_reply = ?,
			reply_to_handle = ?, reply_to_post_id = ?, attachments = ?,
			repost_count = ?, favorite_count = ?, fingerprint = ?, updated_at = ?
		WHERE id = ?`,
		post.AuthorHandle, post.PlainText, post.RichText, post.PostedAt.Unix(),
		post.FetchedAt.Unix(), post.Permalink, post.AuthorAvatarURL,
		post.IsThreadRoot, post.IsInThread, nullable(post.ThreadId),
		post.IsReply, nullable(post.ReplyToHandle), nullable(post.ReplyToPostId),
		string(attachments), post.RepostCount, post.FavoriteCount,
		post.ContentFingerprint, time.Now().Unix(), post.Id,
	)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	return nil
}

func scanPosts(rows *sql.Rows) ([]models.Post, error) {
	var posts []models.Post
	for rows.Next() {
		var post models.Post
		var postedAt, fetchedAt int64
		var threadId, replyToHandle, replyToPostId sql.NullString
		var attachments string

		if err := rows.Scan(
			&post.Id, &post.AuthorHandle, &post.PlainText, &post.RichText,
			&postedAt, &fetchedAt, &post.Permalink, &post.AuthorAvatarURL,
			&post.IsThreadRoot, &post.IsInThread, &threadId, &post.IsReply,
			&replyToHandle, &replyToPostId, &attachments,
			&post.RepostCount, &post.FavoriteCount, &post.IsPinned,
			&post.ContentFingerprint,
		); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}

		post.PostedAt = time.Unix(postedAt, 0).UTC()
		post.FetchedAt = time.Unix(fetchedAt, 0).UTC()
		post.ThreadId = threadId.String
		post.ReplyToHandle = replyToHandle.String
		post.ReplyToPostId = replyToPostId.String

		if attachments != "" && attachments != "[]" {
			if err := json.Unmarshal([]byte(attachments), &post.Attachments); err != nil {
				log.WithFields(log.Fields{
					"id": post.Id,
				}).Warn("Undecodable attachments column, dropping attachments")
			}
		}

		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
