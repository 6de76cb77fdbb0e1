package db

import (
	"database/sql"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes non-pinned posts older than maxAge from the database.
// Pinned posts always survive maintenance sweeps.
func Tidy(database string, maxAge time.Duration) error {
	db, err := connection(database)
	if err != nil {
		return err
	}
	defer db.Close()

	return tidy(db, maxAge)
}

func tidy(db *sql.DB, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).Unix()
	deletePosts := sb.NewDeleteBuilder()
	deletePosts.DeleteFrom("posts").
		Where(deletePosts.LessEqualThan("posted_at", cutoff)).
		Where(deletePosts.Equal("pinned", 0))

	query, args := deletePosts.BuildWithFlavor(sb.SQLite)

	log.WithFields(log.Fields{
		"sql":  query,
		"args": args,
	}).Info("Tidying database")

	if _, err := db.Exec(query, args...); err != nil {
		return err
	}

	return nil
}
