// Package remotekv is a read-only client for the remote KV gRPC service: it
// opens one bidirectional stream per logical read transaction and multiplexes
// cursor operations (OPEN, SEEK, SEEK_EXACT, NEXT, ...) over it, matching each
// request with exactly one response before issuing the next.
package remotekv

import (
	"context"
	"fmt"
	"runtime"

	"github.com/cenkalti/backoff/v4"
	"github.com/erigontech/erigon-lib/gointerfaces"
	"github.com/erigontech/erigon-lib/gointerfaces/remote"
	"github.com/erigontech/erigon-lib/log/v3"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ClientVersion is the KV wire-protocol version this client was written
// against; EnsureVersionCompatibility checks it against the server's reply.
var ClientVersion = gointerfaces.Version{Major: 5, Minor: 1, Patch: 0}

// DB is a handle to the remote KV service. It issues no writes: every
// transaction it begins is read-only, mirroring the gateway's own read-only
// contract.
type DB struct {
	client       remote.KVClient
	conn         *grpc.ClientConn
	logger       log.Logger
	roTxsLimiter *semaphore.Weighted
}

// Dial connects to addr and wraps the resulting gRPC connection in a DB,
// retrying the initial dial with an exponential backoff (distinct from
// mid-transaction stream failures, which are not retried).
func Dial(ctx context.Context, addr string, logger log.Logger) (*DB, error) {
	var conn *grpc.ClientConn
	dial := func() error {
		var err error
		conn, err = grpc.NewClient(addr, grpc.WithInsecure()) //nolint:staticcheck
		return err
	}
	if err := backoff.Retry(dial, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("dialing remote kv at %s: %w", addr, err)
	}
	db := New(remote.NewKVClient(conn), logger)
	db.conn = conn
	return db, nil
}

// New wraps an already-constructed KVClient (used directly in tests against
// an in-process gRPC server or a fake). The resulting DB has no underlying
// connection to close; only one obtained via Dial needs Close called on it.
func New(client remote.KVClient, logger log.Logger) *DB {
	target := int64(runtime.GOMAXPROCS(-1)) - 1
	if target <= 1 {
		target = 2
	}
	return &DB{client: client, logger: logger, roTxsLimiter: semaphore.NewWeighted(target)}
}

// Close releases the underlying gRPC connection opened by Dial. Calling it
// on a DB built directly via New is a no-op.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// EnsureVersionCompatibility checks the server's advertised KV interface
// version against ClientVersion.
func (db *DB) EnsureVersionCompatibility(ctx context.Context) error {
	reply, err := db.client.Version(ctx, &emptypb.Empty{}, grpc.WaitForReady(true))
	if err != nil {
		return fmt.Errorf("fetching remote kv version: %w", err)
	}
	if !gointerfaces.EnsureVersion(ClientVersion, reply) {
		return fmt.Errorf("incompatible kv interface: client %s, server %d.%d.%d",
			ClientVersion.String(), reply.Major, reply.Minor, reply.Patch)
	}
	return nil
}

// BeginRo opens a new read transaction. The returned Tx must be released via
// Rollback on every exit path; Rollback is idempotent.
func (db *DB) BeginRo(ctx context.Context) (*Tx, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if err := db.roTxsLimiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := db.client.Tx(streamCtx)
	if err != nil {
		cancel()
		db.roTxsLimiter.Release(1)
		return nil, fmt.Errorf("opening remote kv tx stream: %w", err)
	}
	msg, err := stream.Recv()
	if err != nil {
		cancel()
		db.roTxsLimiter.Release(1)
		return nil, fmt.Errorf("remote kv tx handshake: %w", err)
	}
	return &Tx{
		db:               db,
		stream:           stream,
		cancel:           cancel,
		viewID:           msg.ViewID,
		id:               msg.TxID,
		statelessCursors: make(map[string]*Cursor),
	}, nil
}

// View runs f against a fresh read transaction and guarantees its release.
func (db *DB) View(ctx context.Context, f func(tx *Tx) error) error {
	tx, err := db.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}
