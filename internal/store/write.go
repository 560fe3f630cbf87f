package store

import (
	"context"
	"fmt"

	"github.com/roach88/fieldnet/internal/ir"
)

// WritePass inserts a pass record. Implements engine.Recorder.
// Uses ON CONFLICT(token) DO NOTHING for idempotency: a fixed test token
// reused for several passes keeps the first record.
func (s *Store) WritePass(ctx context.Context, p ir.Pass) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passes
		(token, scene, scene_hash, started_seq, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		p.Token,
		p.Scene,
		p.SceneHash,
		p.StartedSeq,
		ir.EngineVersion,
		ir.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write pass: %w", err)
	}
	return nil
}

// WriteEvent inserts an event record. Implements engine.Recorder.
//
// Note: The pass referenced by PassToken must exist (foreign key constraint).
// Note: Re-writing the same (pass, seq) is silently ignored.
func (s *Store) WriteEvent(ctx context.Context, e ir.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(pass_token, seq, kind, field, source, value, op, caller)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pass_token, seq) DO NOTHING
	`,
		e.PassToken,
		e.Seq,
		e.Kind,
		e.Field,
		e.Source,
		e.Value,
		e.Op,
		e.Caller,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteSnapshot stores the snapshot taken at the end of a pass.
// The entries are serialized to canonical JSON per RFC 8785.
func (s *Store) WriteSnapshot(ctx context.Context, passToken string, snap ir.Snapshot) error {
	entries, err := marshalEntries(snap.Entries)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (pass_token, scene, hash, entries)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pass_token) DO NOTHING
	`, passToken, snap.Scene, snap.Hash, entries)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
