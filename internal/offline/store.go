// Package offline keeps encrypted records and a queue of pending changes in
// the local key-value store, and replays the queue when the remote side
// becomes reachable.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"github.com/dmitrijs2005/bizkeeper/internal/netstatus"
	"github.com/dmitrijs2005/bizkeeper/internal/repositories/kv"
	"github.com/google/uuid"
)

// QueueKey is the key-value entry holding the pending change queue.
const QueueKey = "offlineQueue"

// Encryptor protects values at rest.
type Encryptor interface {
	Encrypt(ctx context.Context, data any) (string, error)
	Decrypt(ctx context.Context, envelope string) (string, error)
}

// Notifier delivers connectivity transitions.
type Notifier interface {
	AddListener(l netstatus.Listener) (remove func())
}

// Change is a mutation recorded while offline.
type Change struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// QueueEntry is a Change as persisted in the queue.
type QueueEntry struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler applies one queued change remotely.
type Handler func(ctx context.Context, e QueueEntry) error

// HandlerTable maps change types to handlers.
type HandlerTable map[string]Handler

// SyncResult summarizes one replay. Failed entries stay queued; entries
// whose type has no handler are dropped.
type SyncResult struct {
	Processed int
	Failed    int
	Dropped   int
}

// RefreshFunc fetches a fresh value from the remote side. A nil value means
// nothing newer is available.
type RefreshFunc func(ctx context.Context) (any, error)

type localEntry struct {
	Data        json.RawMessage `json:"data"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type Store struct {
	repo     kv.Repository
	enc      Encryptor
	status   netstatus.Provider
	handlers HandlerTable
	logger   logging.Logger
	now      func() time.Time

	queueMu sync.Mutex
	syncMu  sync.Mutex
	work    chan struct{}
}

func NewStore(repo kv.Repository, enc Encryptor, status netstatus.Provider, handlers HandlerTable, logger logging.Logger) *Store {
	if handlers == nil {
		handlers = HandlerTable{}
	}
	return &Store{
		repo:     repo,
		enc:      enc,
		status:   status,
		handlers: handlers,
		logger:   logger,
		now:      time.Now,
		work:     make(chan struct{}, 1),
	}
}

// StoreData JSON-encodes value, encrypts it and writes it under key.
// It reports false on any failure.
func (s *Store) StoreData(ctx context.Context, key string, value any) bool {
	if err := s.storeData(ctx, key, value); err != nil {
		s.logger.Error(ctx, "store data failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) storeData(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	env, err := s.enc.Encrypt(ctx, raw)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", key, err)
	}
	if err := s.repo.Set(ctx, key, []byte(env)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

// GetData reads, decrypts and decodes the value under key into out. It
// reports false when the key is missing, holds null, or cannot be read.
func (s *Store) GetData(ctx context.Context, key string, out any) bool {
	found, err := s.getData(ctx, key, out)
	if err != nil {
		s.logger.Error(ctx, "get data failed", "key", key, "error", err)
		return false
	}
	return found
}

func (s *Store) getData(ctx context.Context, key string, out any) (bool, error) {
	blob, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if len(blob) == 0 {
		return false, nil
	}
	plain, err := s.enc.Decrypt(ctx, string(blob))
	if err != nil {
		return false, err
	}
	if plain == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(plain), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// CheckConnectivity reports whether the device is connected and the remote
// side is reachable. Check errors count as offline.
func (s *Store) CheckConnectivity(ctx context.Context) bool {
	st, err := s.status.FetchStatus(ctx)
	if err != nil {
		s.logger.Warn(ctx, "network check failed", "error", err)
		return false
	}
	return st.Online()
}

// QueueOfflineChange appends change to the persisted queue.
func (s *Store) QueueOfflineChange(ctx context.Context, change Change) error {
	if change.Type == "" {
		return fmt.Errorf("%w: change type is empty", common.ErrInvalidInput)
	}
	data := change.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	queue, err := s.readQueueLocked(ctx)
	if err != nil {
		return fmt.Errorf("queue change: %w", err)
	}
	queue = append(queue, QueueEntry{
		ID:        uuid.NewString(),
		Type:      change.Type,
		Data:      data,
		Timestamp: s.now().UTC(),
	})

	if err := s.storeData(ctx, QueueKey, queue); err != nil {
		return fmt.Errorf("queue change: %w", err)
	}
	s.logger.Debug(ctx, "change queued", "type", change.Type, "pending", len(queue))
	return nil
}

// Requeue restores entries, keeping their IDs and timestamps, into an empty
// queue. When changes are already pending nothing is written and 0 is
// returned. Entries without a type are skipped.
func (s *Store) Requeue(ctx context.Context, entries []QueueEntry) (int, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	queue, err := s.readQueueLocked(ctx)
	if err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	if len(queue) > 0 {
		return 0, nil
	}

	for _, e := range entries {
		if e.Type == "" {
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now().UTC()
		}
		if len(e.Data) == 0 {
			e.Data = json.RawMessage("null")
		}
		queue = append(queue, e)
	}
	if len(queue) == 0 {
		return 0, nil
	}

	if err := s.storeData(ctx, QueueKey, queue); err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	s.logger.Info(ctx, "changes requeued", "count", len(queue))
	return len(queue), nil
}

// PendingChanges returns a copy of the queue, or nil when it cannot be read.
func (s *Store) PendingChanges(ctx context.Context) []QueueEntry {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	queue, err := s.readQueueLocked(ctx)
	if err != nil {
		s.logger.Error(ctx, "read offline queue", "error", err)
		return nil
	}
	return queue
}

// readQueueLocked treats a queue that cannot be decrypted or decoded as
// empty. Storage errors are returned so callers never overwrite a queue they
// could not read.
func (s *Store) readQueueLocked(ctx context.Context) ([]QueueEntry, error) {
	var queue []QueueEntry
	found, err := s.getData(ctx, QueueKey, &queue)
	if errors.Is(err, common.ErrStorage) {
		return nil, err
	}
	if err != nil {
		s.logger.Warn(ctx, "offline queue unreadable, starting empty", "error", err)
		return nil, nil
	}
	if !found {
		return nil, nil
	}
	return queue, nil
}

// SyncOfflineChanges replays the queue in order when online. Entries that
// fail stay queued, entries with no handler are dropped, and changes queued
// while the replay was running are kept.
func (s *Store) SyncOfflineChanges(ctx context.Context) (SyncResult, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	var res SyncResult

	s.queueMu.Lock()
	snapshot, err := s.readQueueLocked(ctx)
	s.queueMu.Unlock()
	if err != nil {
		return res, fmt.Errorf("read offline queue: %w", err)
	}

	if len(snapshot) == 0 {
		return res, nil
	}
	if !s.CheckConnectivity(ctx) {
		return res, nil
	}

	var failed []QueueEntry
	for i, e := range snapshot {
		if ctx.Err() != nil {
			failed = append(failed, snapshot[i:]...)
			res.Failed += len(snapshot) - i
			break
		}

		h, ok := s.handlers[e.Type]
		if !ok {
			s.logger.Warn(ctx, "dropping change with unknown type", "id", e.ID, "type", e.Type)
			res.Dropped++
			continue
		}
		if err := h(ctx, e); err != nil {
			s.logger.Error(ctx, "sync error for change", "id", e.ID, "type", e.Type, "error", err)
			failed = append(failed, e)
			res.Failed++
			continue
		}
		res.Processed++
	}

	// The outcome is recorded even if the caller has stopped waiting.
	ctx = context.WithoutCancel(ctx)

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	seen := make(map[string]struct{}, len(snapshot))
	for _, e := range snapshot {
		seen[e.ID] = struct{}{}
	}
	current, err := s.readQueueLocked(ctx)
	if err != nil {
		// The stored queue still holds every replayed entry; the sink
		// ignores the ones already applied on the next pass.
		return res, fmt.Errorf("read offline queue: %w", err)
	}
	remaining := failed
	for _, e := range current {
		if _, ok := seen[e.ID]; !ok {
			remaining = append(remaining, e)
		}
	}
	if remaining == nil {
		remaining = []QueueEntry{}
	}

	if err := s.storeData(ctx, QueueKey, remaining); err != nil {
		return res, fmt.Errorf("persist offline queue: %w", err)
	}

	s.logger.Info(ctx, "offline changes synced",
		"processed", res.Processed, "failed", res.Failed, "dropped", res.Dropped)
	return res, nil
}

// Reencrypt decrypts the queue and the values under keys, calls rotate
// (which is expected to replace the encryption key) and writes the values
// back encrypted under the new key. Queue writes and syncs wait for it.
// Values that cannot be decrypted are left untouched.
func (s *Store) Reencrypt(ctx context.Context, keys []string, rotate func(ctx context.Context) error) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	plain := make(map[string]string, len(keys)+1)
	for _, key := range append([]string{QueueKey}, keys...) {
		blob, err := s.repo.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrStorage, err)
		}
		if len(blob) == 0 {
			continue
		}
		p, err := s.enc.Decrypt(ctx, string(blob))
		if err != nil {
			s.logger.Warn(ctx, "unreadable value left as is", "key", key, "error", err)
			continue
		}
		plain[key] = p
	}

	if err := rotate(ctx); err != nil {
		return err
	}

	// From here on the old key is gone; finish even if the caller gives up.
	ctx = context.WithoutCancel(ctx)
	for key, p := range plain {
		env, err := s.enc.Encrypt(ctx, []byte(p))
		if err != nil {
			return fmt.Errorf("re-encrypt %s: %w", key, err)
		}
		if err := s.repo.Set(ctx, key, []byte(env)); err != nil {
			return fmt.Errorf("%w: %v", common.ErrStorage, err)
		}
	}
	s.logger.Info(ctx, "local data re-encrypted", "values", len(plain))
	return nil
}

// StoreLocalData caches data under key together with the time it was stored.
func (s *Store) StoreLocalData(ctx context.Context, key string, data any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Error(ctx, "local storage error", "key", key, "error", err)
		return false
	}
	return s.StoreData(ctx, key, localEntry{Data: raw, LastUpdated: s.now().UTC()})
}

// GetLocalData decodes the value cached under key into out. When online and
// refresh yields a value, that value is cached and decoded instead. A failed
// refresh is logged and the cached value is used.
func (s *Store) GetLocalData(ctx context.Context, key string, out any, refresh RefreshFunc) (bool, error) {
	if refresh != nil && s.CheckConnectivity(ctx) {
		fresh, err := refresh(ctx)
		if err != nil {
			s.logger.Warn(ctx, "refresh failed, using cached data", "key", key, "error", err)
		}
		if err == nil && fresh != nil {
			raw, err := json.Marshal(fresh)
			if err != nil {
				return false, fmt.Errorf("encode %s: %w", key, err)
			}
			if !s.StoreLocalData(ctx, key, json.RawMessage(raw)) {
				s.logger.Warn(ctx, "refreshed value not cached", "key", key)
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return false, fmt.Errorf("decode %s: %w", key, err)
			}
			return true, nil
		}
	}

	var entry localEntry
	if !s.GetData(ctx, key, &entry) {
		return false, nil
	}
	if len(entry.Data) == 0 || string(entry.Data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// InitializeOfflineStorage starts the sync worker, subscribes it to
// connectivity changes and runs one sync if already online. The worker and
// the subscription end with ctx; the returned channel is closed once the
// worker, including any sync in flight, has stopped.
func (s *Store) InitializeOfflineStorage(ctx context.Context, n Notifier) <-chan struct{} {
	remove := n.AddListener(func(st netstatus.Status) {
		if st.Online() {
			s.RequestSync()
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer remove()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.work:
				if _, err := s.SyncOfflineChanges(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error(ctx, "background sync failed", "error", err)
				}
			}
		}
	}()

	if s.CheckConnectivity(ctx) {
		if _, err := s.SyncOfflineChanges(ctx); err != nil {
			s.logger.Error(ctx, "initial sync failed", "error", err)
		}
	}
	return done
}

// RequestSync schedules a background sync without blocking. Requests made
// while one is already pending are coalesced.
func (s *Store) RequestSync() {
	select {
	case s.work <- struct{}{}:
	default:
	}
}
