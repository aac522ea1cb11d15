// Package badgerstore implements the backing-store record contract on
// BadgerDB. Watchers get an in-process fan-out of every mutation, with
// the current prefix contents replayed on subscribe so a fresh
// subscription always sees the full window, not just new deltas.
package badgerstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"chat-sync/contract"
	cserrors "chat-sync/errors"
)

type watcher struct {
	prefix string
	fn     contract.WatchFunc
}

// Store is a RecordStore backed by a local Badger instance. All
// mutations are single-record atomic; watcher callbacks run
// synchronously on the mutator's goroutine, which preserves arrival
// order within one subscription.
type Store struct {
	db  *badger.DB
	log *slog.Logger

	mu         sync.Mutex
	watchers   map[int]watcher
	nextWatch  int
	disconnect map[string][]byte

	keyMu    sync.Mutex
	lastNano int64
}

// Open creates the Badger database under dir and returns the store.
func Open(dir string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	return &Store{
		db:         db,
		log:        log,
		watchers:   make(map[int]watcher),
		disconnect: make(map[string][]byte),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encode(value any) ([]byte, error) {
	data, err := cbor.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal failed: %w", err)
	}
	return data, nil
}

func decoder(data []byte) func(out any) error {
	return func(out any) error {
		return cbor.Unmarshal(data, out)
	}
}

// Put creates or fully replaces the record at key.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(value)
	if err != nil {
		return err
	}
	existed := false
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			existed = true
		}
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return err
	}
	kind := contract.ChangeAdded
	if existed {
		kind = contract.ChangeModified
	}
	s.notify(contract.Change{Kind: kind, Key: key, Decode: decoder(data)})
	return nil
}

// Create stores the record only if the key is absent.
func (s *Store) Create(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(value)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			return cserrors.ErrAlreadyExists
		}
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return err
	}
	s.notify(contract.Change{Kind: contract.ChangeAdded, Key: key, Decode: decoder(data)})
	return nil
}

// Get decodes the record at key into out.
func (s *Store) Get(ctx context.Context, key string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return cserrors.ErrNotFound
	}
	if err != nil {
		return err
	}
	return cbor.Unmarshal(data, out)
}

// Delete removes the record at key. Deleting a missing key succeeds
// without notifying watchers.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var last []byte
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		last, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	if existed {
		s.notify(contract.Change{Kind: contract.ChangeRemoved, Key: key, Decode: decoder(last)})
	}
	return nil
}

// Watch replays every record under prefix as ChangeAdded, then streams
// live mutations until the returned cancel runs or ctx is done.
func (s *Store) Watch(ctx context.Context, prefix string, fn contract.WatchFunc) (contract.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Replay first, then register. A mutation landing in between is
	// delivered twice at worst, and consumers merge idempotently by
	// identity key.
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			fn(contract.Change{Kind: contract.ChangeAdded, Key: string(item.Key()), Decode: decoder(data)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = watcher{prefix: prefix, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()
	return cancel, nil
}

func (s *Store) notify(c contract.Change) {
	s.mu.Lock()
	targets := make([]contract.WatchFunc, 0, len(s.watchers))
	for _, w := range s.watchers {
		if len(c.Key) >= len(w.prefix) && c.Key[:len(w.prefix)] == w.prefix {
			targets = append(targets, w.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range targets {
		fn(c)
	}
}

// OnDisconnect registers a record replacement applied by the store when
// the connection drops without a clean sign-out.
func (s *Store) OnDisconnect(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.disconnect[key] = data
	s.mu.Unlock()
	return nil
}

// ClearDisconnect drops a registered disconnect action.
func (s *Store) ClearDisconnect(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.disconnect, key)
	s.mu.Unlock()
	return nil
}

// Disconnect simulates an abrupt connection loss: every registered
// disconnect action is applied and the registry is cleared. The real
// backing service runs the equivalent server-side.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	pending := s.disconnect
	s.disconnect = make(map[string][]byte)
	s.mu.Unlock()

	for key, data := range pending {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(key), data)
		})
		if err != nil {
			return err
		}
		s.notify(contract.Change{Kind: contract.ChangeModified, Key: key, Decode: decoder(data)})
	}
	return nil
}

// NewKey returns an order-preserving key under prefix. The key embeds a
// zero-padded nanosecond timestamp for lexicographic time ordering and a
// UUID as a collision disconnector; the timestamp is forced strictly
// monotonic within this process.
func (s *Store) NewKey(prefix string) string {
	s.keyMu.Lock()
	nano := time.Now().UnixNano()
	if nano <= s.lastNano {
		nano = s.lastNano + 1
	}
	s.lastNano = nano
	s.keyMu.Unlock()
	return fmt.Sprintf("%s%019d-%s", prefix, nano, uuid.New())
}
