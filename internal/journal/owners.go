package journal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

// staleAfter is how many missed heartbeats make an owner count as gone.
const staleAfter = 3

func (db *DB) register(now time.Time) error {
	_, err := db.conn.Exec(
		`INSERT INTO owners (id, pid, heartbeat_at) VALUES (?, ?, ?)`,
		db.owner, os.Getpid(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to register journal owner: %w", err)
	}
	return nil
}

func (db *DB) unregister() error {
	_, err := db.conn.Exec(`DELETE FROM owners WHERE id = ?`, db.owner)
	return err
}

func (db *DB) beat(ctx context.Context, now time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE owners SET heartbeat_at = ? WHERE id = ?`, now.UnixMilli(), db.owner)
	if err != nil {
		return fmt.Errorf("failed to refresh journal owner: %w", err)
	}
	return nil
}

func (db *DB) keepAlive() {
	defer db.wg.Done()

	ticker := time.NewTicker(db.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-db.stop:
			return
		case now := <-ticker.C:
			if err := db.beat(context.Background(), now); err != nil {
				log.ErrorErr(log.CatJournal, "Journal heartbeat failed", err, "owner", db.owner)
			}
		}
	}
}

// liveSince returns the oldest heartbeat that still counts as alive at now.
func (db *DB) liveSince(now time.Time) int64 {
	return now.Add(-staleAfter * db.heartbeat).UnixMilli()
}
