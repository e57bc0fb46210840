package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/demiurge/internal/chain"
	"go.uber.org/zap"
)

// AppendTx stores an executed transaction. Re-appending a known hash is a no-op.
func (s *Store) AppendTx(ctx context.Context, rec *chain.TxRecord) error {
	var to *string
	if rec.To != nil {
		v := rec.To.String()
		to = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO chain_transactions (seq, hash, raw, system, from_addr, to_addr, module_id, call_id, nonce, fee, height, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (hash) DO NOTHING`,
		int64(rec.Seq), rec.Hash, rec.Raw, rec.System, rec.From.String(), to,
		rec.ModuleID, rec.CallID, int64(rec.Nonce), int64(rec.Fee), int64(rec.Height), rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append tx %s: %w", rec.Hash, err)
	}
	return nil
}

// AppendBlock stores a sealed block.
func (s *Store) AppendBlock(ctx context.Context, b *chain.Block) error {
	hashes, err := json.Marshal(b.TxHashes)
	if err != nil {
		return fmt.Errorf("marshal tx hashes: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO chain_blocks (height, hash, prev_hash, state_root, tx_hashes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (height) DO UPDATE SET
			hash = EXCLUDED.hash,
			prev_hash = EXCLUDED.prev_hash,
			state_root = EXCLUDED.state_root,
			tx_hashes = EXCLUDED.tx_hashes,
			created_at = EXCLUDED.created_at`,
		int64(b.Height), b.Hash, b.PrevHash, b.StateRoot, hashes, b.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append block %d: %w", b.Height, err)
	}
	return nil
}

// Load returns every transaction in execution order and the latest block.
func (s *Store) Load(ctx context.Context) ([]*chain.TxRecord, *chain.Block, error) {
	rows, err := s.db.Query(ctx, `
		SELECT seq, hash, raw, system, from_addr, to_addr, module_id, call_id, nonce, fee, height, created_at
		FROM chain_transactions
		ORDER BY seq ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("load transactions: %w", err)
	}
	defer rows.Close()

	var recs []*chain.TxRecord
	for rows.Next() {
		var (
			rec                     chain.TxRecord
			seq, nonce, fee, height int64
			from                    string
			to                      *string
		)
		if err := rows.Scan(&seq, &rec.Hash, &rec.Raw, &rec.System, &from, &to,
			&rec.ModuleID, &rec.CallID, &nonce, &fee, &height, &rec.Timestamp); err != nil {
			return nil, nil, fmt.Errorf("scan transaction: %w", err)
		}
		if rec.From, err = chain.ParseAddress(from); err != nil {
			return nil, nil, fmt.Errorf("transaction %s: %w", rec.Hash, err)
		}
		if to != nil {
			a, err := chain.ParseAddress(*to)
			if err != nil {
				return nil, nil, fmt.Errorf("transaction %s: %w", rec.Hash, err)
			}
			rec.To = &a
		}
		rec.Seq, rec.Nonce, rec.Fee, rec.Height = uint64(seq), uint64(nonce), uint64(fee), uint64(height)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load transactions: %w", err)
	}

	var (
		b      chain.Block
		height int64
		hashes []byte
	)
	err = s.db.QueryRow(ctx, `
		SELECT height, hash, prev_hash, state_root, tx_hashes, created_at
		FROM chain_blocks
		ORDER BY height DESC
		LIMIT 1`).Scan(&height, &b.Hash, &b.PrevHash, &b.StateRoot, &hashes, &b.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return recs, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load head block: %w", err)
	}
	b.Height = uint64(height)
	if err := json.Unmarshal(hashes, &b.TxHashes); err != nil {
		return nil, nil, fmt.Errorf("decode block %d tx hashes: %w", b.Height, err)
	}
	s.logger.Info("journal loaded", zap.Int("transactions", len(recs)), zap.Uint64("height", b.Height))
	return recs, &b, nil
}

var _ chain.Journal = (*Store)(nil)
