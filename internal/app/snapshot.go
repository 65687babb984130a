package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/offline"
	"github.com/dmitrijs2005/bizkeeper/internal/remote"
)

// RecentLimit is how many remote changes are cached per entity.
const RecentLimit = 50

// Snapshot is the application data captured in a backup: the cached recent
// records per entity and the changes still waiting to be replayed.
type Snapshot struct {
	CreatedAt time.Time                  `json:"createdAt"`
	Recent    map[string]json.RawMessage `json:"recent,omitempty"`
	Pending   []offline.QueueEntry       `json:"pending,omitempty"`
}

// RestoreResult counts what RestoreSnapshot brought back.
type RestoreResult struct {
	Entities int
	Requeued int
}

// RecentKey is the local cache key for an entity's recent records.
func RecentKey(entity string) string {
	return "recent:" + entity
}

func knownEntity(entity string) bool {
	for _, e := range remote.Entities {
		if e == entity {
			return true
		}
	}
	return false
}

// Snapshot collects the locally cached data without touching the network.
func (a *App) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		CreatedAt: time.Now().UTC(),
		Recent:    make(map[string]json.RawMessage),
		Pending:   a.Offline.PendingChanges(ctx),
	}
	for _, entity := range remote.Entities {
		var raw json.RawMessage
		ok, err := a.Offline.GetLocalData(ctx, RecentKey(entity), &raw, nil)
		if err != nil {
			a.logger.Warn(ctx, "cached data skipped", "entity", entity, "error", err)
			continue
		}
		if ok {
			snap.Recent[entity] = raw
		}
	}
	return snap
}

// RestoreSnapshot restores the backup at path into the local cache. Pending
// changes from the backup are requeued only when the current queue is empty,
// so a restore never duplicates work already waiting.
func (a *App) RestoreSnapshot(ctx context.Context, path string) (RestoreResult, error) {
	var snap Snapshot
	if err := a.Backups.RestoreBackup(ctx, path, &snap); err != nil {
		return RestoreResult{}, err
	}

	var res RestoreResult
	for entity, raw := range snap.Recent {
		if !knownEntity(entity) {
			continue
		}
		if !a.Offline.StoreLocalData(ctx, RecentKey(entity), raw) {
			return res, fmt.Errorf("%w: restore %s", common.ErrStorage, entity)
		}
		res.Entities++
	}

	// Entries keep their IDs so the sink skips changes it already applied.
	n, err := a.Offline.Requeue(ctx, snap.Pending)
	if err != nil {
		return res, err
	}
	res.Requeued = n

	a.logger.Info(ctx, "backup restored", "path", path, "entities", res.Entities, "requeued", res.Requeued)
	return res, nil
}

// RecordChange queues a business change for replay and asks for a sync.
func (a *App) RecordChange(ctx context.Context, entity string, data json.RawMessage) error {
	if !knownEntity(entity) {
		return fmt.Errorf("%w: unknown entity %q", common.ErrInvalidInput, entity)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%w: payload is not valid JSON", common.ErrInvalidInput)
	}
	if err := a.Offline.QueueOfflineChange(ctx, offline.Change{Type: entity, Data: data}); err != nil {
		return err
	}
	a.Offline.RequestSync()
	return nil
}

// Recent returns the records cached for entity, refreshing them from the
// remote database first when it is configured and reachable.
func (a *App) Recent(ctx context.Context, entity string) ([]remote.Record, error) {
	if !knownEntity(entity) {
		return nil, fmt.Errorf("%w: unknown entity %q", common.ErrInvalidInput, entity)
	}
	var refresh offline.RefreshFunc
	if a.Sink != nil {
		refresh = a.Sink.RefreshRecent(entity, RecentLimit)
	}

	var recs []remote.Record
	if _, err := a.Offline.GetLocalData(ctx, RecentKey(entity), &recs, refresh); err != nil {
		return nil, err
	}
	return recs, nil
}

// RotateKey replaces the master key and re-encrypts the locally cached data
// and the pending queue under the new key. Backups written with the old key
// can no longer be decrypted.
func (a *App) RotateKey(ctx context.Context) error {
	keys := make([]string, 0, len(remote.Entities))
	for _, entity := range remote.Entities {
		keys = append(keys, RecentKey(entity))
	}

	return a.Offline.Reencrypt(ctx, keys, func(ctx context.Context) error {
		newKey, err := common.MakeRandHexString(32)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrKeyInitialization, err)
		}
		if err := a.Encryption.ChangeEncryptionKey(ctx, newKey); err != nil {
			return err
		}
		a.logger.Info(ctx, "encryption key rotated")
		return nil
	})
}
