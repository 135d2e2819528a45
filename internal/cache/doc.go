// Package cache holds the local mirror of a map: the authoritative id-set
// per class, and the list of features.
//
// The two halves are reconciled by Merge in two phases. Changed features
// from a sync poll are merged first; only then is the previous id-set diffed
// against the new one, and features whose id disappeared are dropped. Keeping
// the phases apart means a feature deleted on the server is never briefly
// re-added by the same cycle that removes it.
//
// Features are unique per (id, class). A live track and the finished track
// it turns into can share an id while differing in class, so every lookup
// that mutates matches on both.
package cache
