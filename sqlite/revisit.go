package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fwojciec/egress"
)

// Compile-time interface verification.
var _ egress.RevisitStore = (*RevisitStore)(nil)

// RevisitStore implements egress.RevisitStore using SQLite. Rows expire a
// retention period after they were last seen; expired rows are ignored by
// FindRevisit and removed by Sweep.
type RevisitStore struct {
	db        *DB
	retention time.Duration
	now       func() time.Time
}

// RevisitOption configures a RevisitStore.
type RevisitOption func(*RevisitStore)

// WithRetention keeps rows for d after LastSeen instead of twice their TTL.
func WithRetention(d time.Duration) RevisitOption {
	return func(s *RevisitStore) {
		s.retention = d
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) RevisitOption {
	return func(s *RevisitStore) {
		s.now = now
	}
}

// NewRevisitStore creates a new RevisitStore.
func NewRevisitStore(db *DB, opts ...RevisitOption) *RevisitStore {
	s := &RevisitStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindRevisit retrieves the live record for url.
func (s *RevisitStore) FindRevisit(ctx context.Context, url string) (*egress.RevisitInfo, error) {
	var info egress.RevisitInfo
	var lastSeen string
	var ttlMS int64

	err := s.db.QueryRowContext(ctx, `
		SELECT url, etag, last_modified, last_seen, ttl_ms
		FROM revisits
		WHERE url = ? AND (expires_at = '' OR expires_at > ?)
	`, url, formatTime(s.now())).Scan(&info.URL, &info.ETag, &info.LastModified, &lastSeen, &ttlMS)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, egress.Errorf(egress.ENOTFOUND, "no revisit record for %s", url)
	}
	if err != nil {
		return nil, egress.Wrapf(err, egress.EUNAVAILABLE, "querying revisit record")
	}

	info.LastSeen, err = parseTime(lastSeen, "last_seen")
	if err != nil {
		return nil, egress.Wrapf(err, egress.EINTERNAL, "decoding revisit record")
	}
	info.TTL = time.Duration(ttlMS) * time.Millisecond
	return &info, nil
}

// SaveRevisit creates or replaces the record for info.URL.
func (s *RevisitStore) SaveRevisit(ctx context.Context, info *egress.RevisitInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	keep := s.retention
	if keep <= 0 {
		keep = 2 * info.TTL
	}
	var expiresAt string
	if keep > 0 {
		expiresAt = formatTime(info.LastSeen.Add(keep))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revisits (url, etag, last_modified, last_seen, ttl_ms, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			last_seen = excluded.last_seen,
			ttl_ms = excluded.ttl_ms,
			expires_at = excluded.expires_at
	`, info.URL, info.ETag, info.LastModified, formatTime(info.LastSeen),
		info.TTL.Milliseconds(), expiresAt)
	if err != nil {
		return egress.Wrapf(err, egress.EUNAVAILABLE, "saving revisit record")
	}
	return nil
}

// DeleteRevisit removes the record for url.
func (s *RevisitStore) DeleteRevisit(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM revisits WHERE url = ?`, url); err != nil {
		return egress.Wrapf(err, egress.EUNAVAILABLE, "deleting revisit record")
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *RevisitStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM revisits WHERE expires_at != '' AND expires_at <= ?
	`, formatTime(s.now()))
	if err != nil {
		return 0, egress.Wrapf(err, egress.EUNAVAILABLE, "sweeping revisit records")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
