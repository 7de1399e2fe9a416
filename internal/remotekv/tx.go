package remotekv

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/erigontech/erigon-lib/gointerfaces/remote"
)

// ErrKeyNotFound is the error send wraps around the stream context's error
// when a cursor request is attempted after the transaction's stream has
// ended. Absent keys are reported as nil values, not with this error.
var ErrKeyNotFound = errors.New("remotekv: key not found")

// Tx is a single read transaction against the remote KV service. It owns
// exactly one gRPC stream; every cursor it opens is subordinate to that
// stream and is implicitly closed server-side when the stream ends.
type Tx struct {
	db     *DB
	stream remote.KV_TxClient
	cancel context.CancelFunc

	viewID, id uint64

	statelessCursors map[string]*Cursor
	cursors          []*Cursor
	released         bool
}

func (tx *Tx) ViewID() uint64 { return tx.viewID }

// Rollback releases the transaction's stream and semaphore slot. It is safe
// to call more than once and must be deferred immediately after a
// successful BeginRo so that cancellation and panics still release it.
func (tx *Tx) Rollback() {
	if tx.released {
		return
	}
	tx.released = true
	tx.cancel()
	tx.db.roTxsLimiter.Release(1)
}

// Cursor opens a plain (non dup-sort) cursor over table.
func (tx *Tx) Cursor(table string) (*Cursor, error) {
	if err := tx.send(&remote.Cursor{Op: remote.Op_OPEN, BucketName: table}); err != nil {
		return nil, err
	}
	pair, err := tx.recv()
	if err != nil {
		return nil, err
	}
	c := &Cursor{tx: tx, table: table, id: pair.CursorID}
	tx.cursors = append(tx.cursors, c)
	return c, nil
}

// statelessCursor returns a cursor cached per-table for one-shot point
// lookups (GetOne / SeekBothRange), grounded on the teacher's
// statelessCursor memoization so repeated point reads on the same table
// within one request do not re-issue an OPEN each time.
func (tx *Tx) statelessCursor(table string) (*Cursor, error) {
	if c, ok := tx.statelessCursors[table]; ok {
		return c, nil
	}
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	tx.statelessCursors[table] = c
	return c, nil
}

// GetOne returns the exact value stored at key, or nil when absent.
func (tx *Tx) GetOne(table string, key []byte) ([]byte, error) {
	c, err := tx.statelessCursor(table)
	if err != nil {
		return nil, err
	}
	_, v, err := c.SeekExact(key)
	return v, err
}

// Seek returns the first key at or after seekKey in table, using the
// per-table stateless cursor (SEEK).
func (tx *Tx) Seek(table string, seekKey []byte) ([]byte, []byte, error) {
	c, err := tx.statelessCursor(table)
	if err != nil {
		return nil, nil, err
	}
	return c.Seek(seekKey)
}

// Has reports whether key is present in table.
func (tx *Tx) Has(table string, key []byte) (bool, error) {
	v, err := tx.GetOne(table, key)
	return v != nil, err
}

// ForPrefix visits every (k, v) pair whose key starts with prefix, in key
// order, until the visitor returns false or an error.
func (tx *Tx) ForPrefix(table string, prefix []byte, visitor func(k, v []byte) (bool, error)) error {
	c, err := tx.Cursor(table)
	if err != nil {
		return err
	}
	defer c.Close()
	for k, v, err := c.Seek(prefix); k != nil; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(k, prefix) {
			return nil
		}
		cont, err := visitor(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Walk advances from startKey while the leading fixedBits of successive keys
// match startKey's, invoking visitor on each pair.
func (tx *Tx) Walk(table string, startKey []byte, fixedBits int, visitor func(k, v []byte) (bool, error)) error {
	fixedBytes, mask := fixedBitsToMask(fixedBits)
	c, err := tx.Cursor(table)
	if err != nil {
		return err
	}
	defer c.Close()
	for k, v, err := c.Seek(startKey); k != nil; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		if fixedBytes > 0 {
			if len(k) < fixedBytes {
				return nil
			}
			if !bytes.Equal(k[:fixedBytes-1], startKey[:fixedBytes-1]) {
				return nil
			}
			if mask != 0 && k[fixedBytes-1]&mask != startKey[fixedBytes-1]&mask {
				return nil
			}
		}
		cont, err := visitor(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func fixedBitsToMask(fixedBits int) (fixedBytes int, mask byte) {
	fixedBytes = (fixedBits + 7) / 8
	shiftBits := fixedBits & 7
	if shiftBits != 0 {
		mask = 0xff << (8 - shiftBits)
	} else {
		mask = 0xff
	}
	return fixedBytes, mask
}

func (tx *Tx) send(c *remote.Cursor) error {
	select {
	case <-tx.stream.Context().Done():
		return fmt.Errorf("%w: %v", ErrKeyNotFound, tx.stream.Context().Err())
	default:
	}
	if err := tx.stream.Send(c); err != nil {
		return fmt.Errorf("remote kv send: %w", err)
	}
	return nil
}

func (tx *Tx) recv() (*remote.Pair, error) {
	pair, err := tx.stream.Recv()
	if err != nil {
		return nil, fmt.Errorf("remote kv recv: %w", err)
	}
	return pair, nil
}

// Cursor is a single server-side cursor, identified by its numeric id and
// bound to the table it was opened against.
type Cursor struct {
	tx    *Tx
	table string
	id    uint32
}

func (c *Cursor) op(op remote.Op, k, v []byte) (*remote.Pair, error) {
	if err := c.tx.send(&remote.Cursor{Cursor: c.id, Op: op, K: k, V: v}); err != nil {
		return nil, err
	}
	return c.tx.recv()
}

func (c *Cursor) First() ([]byte, []byte, error) {
	pair, err := c.op(remote.Op_FIRST, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

func (c *Cursor) Next() ([]byte, []byte, error) {
	pair, err := c.op(remote.Op_NEXT, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

func (c *Cursor) NextDup() ([]byte, []byte, error) {
	pair, err := c.op(remote.Op_NEXT_DUP, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

func (c *Cursor) Prev() ([]byte, []byte, error) {
	pair, err := c.op(remote.Op_PREV, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

func (c *Cursor) Last() ([]byte, []byte, error) {
	pair, err := c.op(remote.Op_LAST, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

// Seek returns the first key at or after k (SEEK).
func (c *Cursor) Seek(k []byte) ([]byte, []byte, error) {
	pair, err := c.op(remote.Op_SEEK, k, nil)
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

// SeekExact returns the value at exactly k, or (nil, nil) when absent
// (SEEK_EXACT).
func (c *Cursor) SeekExact(k []byte) ([]byte, []byte, error) {
	pair, err := c.op(remote.Op_SEEK_EXACT, k, nil)
	if err != nil {
		return nil, nil, err
	}
	if pair.K == nil {
		return nil, nil, nil
	}
	return pair.K, pair.V, nil
}

// SeekBothRange is SEEK_BOTH on a duplicate-sorted table: it returns the
// first value at key whose own value is >= subkey.
func (c *Cursor) SeekBothRange(key, subkey []byte) ([]byte, error) {
	pair, err := c.op(remote.Op_SEEK_BOTH, key, subkey)
	if err != nil {
		return nil, err
	}
	return pair.V, nil
}

// SeekBothExact is SEEK_BOTH_EXACT: exact (key, subkey) match.
func (c *Cursor) SeekBothExact(key, subkey []byte) ([]byte, []byte, error) {
	pair, err := c.op(remote.Op_SEEK_BOTH_EXACT, key, subkey)
	if err != nil {
		return nil, nil, err
	}
	return pair.K, pair.V, nil
}

func (c *Cursor) Close() {
	_, _ = c.op(remote.Op_CLOSE, nil, nil)
}
