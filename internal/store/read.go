package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fieldnet/internal/ir"
)

// ReadPass returns the pass with token, or ErrNotFound.
func (s *Store) ReadPass(ctx context.Context, token string) (ir.Pass, error) {
	var p ir.Pass
	err := s.db.QueryRowContext(ctx, `
		SELECT token, scene, scene_hash, started_seq
		FROM passes
		WHERE token = ?
	`, token).Scan(&p.Token, &p.Scene, &p.SceneHash, &p.StartedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Pass{}, fmt.Errorf("pass %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return ir.Pass{}, fmt.Errorf("read pass: %w", err)
	}
	return p, nil
}

// ListPasses returns every stored pass, ordered by starting seq then token.
//
// Returns an empty slice (not nil) if the store holds no passes.
func (s *Store) ListPasses(ctx context.Context) ([]ir.Pass, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, scene, scene_hash, started_seq
		FROM passes
		ORDER BY started_seq ASC, token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	passes := []ir.Pass{}
	for rows.Next() {
		var p ir.Pass
		if err := rows.Scan(&p.Token, &p.Scene, &p.SceneHash, &p.StartedSeq); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

// ReadEvents returns the events of a pass in seq order.
//
// Returns an empty slice (not nil) if the pass has no events.
func (s *Store) ReadEvents(ctx context.Context, passToken string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pass_token, seq, kind, field, source, value, op, caller
		FROM events
		WHERE pass_token = ?
		ORDER BY seq ASC
	`, passToken)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var e ir.Event
		if err := rows.Scan(&e.PassToken, &e.Seq, &e.Kind, &e.Field, &e.Source, &e.Value, &e.Op, &e.Caller); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEvents counts the events of kind in a pass. An empty field counts
// events on every field.
func (s *Store) CountEvents(ctx context.Context, passToken, kind, field string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM events
		WHERE pass_token = ? AND kind = ? AND (? = '' OR field = ?)
	`, passToken, kind, field, field).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// LatestSeq returns the highest stored seq, or 0 for an empty store. A
// scene that continues a stored trace starts its clock here.
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadSnapshot returns the snapshot stored for a pass, or ErrNotFound.
func (s *Store) ReadSnapshot(ctx context.Context, passToken string) (ir.Snapshot, error) {
	var snap ir.Snapshot
	var entries string
	err := s.db.QueryRowContext(ctx, `
		SELECT scene, hash, entries
		FROM snapshots
		WHERE pass_token = ?
	`, passToken).Scan(&snap.Scene, &snap.Hash, &entries)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Snapshot{}, fmt.Errorf("snapshot of pass %s: %w", passToken, ErrNotFound)
	}
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	snap.Entries, err = unmarshalEntries(entries)
	if err != nil {
		return ir.Snapshot{}, err
	}
	return snap, nil
}

// LatestSnapshot returns the token and snapshot of the last pass of scene
// that stored one, or ErrNotFound.
func (s *Store) LatestSnapshot(ctx context.Context, scene string) (string, ir.Snapshot, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT p.token
		FROM passes p
		JOIN snapshots s ON s.pass_token = p.token
		WHERE p.scene = ?
		ORDER BY p.started_seq DESC, p.token COLLATE BINARY DESC
		LIMIT 1
	`, scene).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ir.Snapshot{}, fmt.Errorf("snapshot of scene %s: %w", scene, ErrNotFound)
	}
	if err != nil {
		return "", ir.Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	snap, err := s.ReadSnapshot(ctx, token)
	return token, snap, err
}
