package shared

import "fmt"

// CorpSyncLockKey builds the redis key serializing timeline sync and
// aggregation for one corporation. The engine itself never locks; schedulers
// that run Sync and Aggregate concurrently for the same corp use this key.
func CorpSyncLockKey(corpID int64) string {
	return fmt.Sprintf("taxtools:corp:%d:sync:lock", corpID)
}
