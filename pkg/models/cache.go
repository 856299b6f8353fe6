package models

import "time"

// StorageClass is the cold-store tier an artifact currently lives in.
type StorageClass string

const (
	ClassStandard StorageClass = "STANDARD"
	ClassNearline StorageClass = "NEARLINE"
)

// Lifecycle ages for cold-store artifacts.
const (
	NearlineAfter = 7 * 24 * time.Hour
	DeleteAfter   = 30 * 24 * time.Hour
)

// ClassForAge returns the storage class for an artifact of the given age.
// expired is true once the artifact is past its deletion age.
func ClassForAge(age time.Duration) (class StorageClass, expired bool) {
	switch {
	case age > DeleteAfter:
		return "", true
	case age >= NearlineAfter:
		return ClassNearline, false
	default:
		return ClassStandard, false
	}
}

// CacheStats reports cache performance metrics for one tier.
type CacheStats struct {
	Backend string                 `json:"backend"`
	Entries int64                  `json:"entries"`
	Bytes   int64                  `json:"bytes"`
	Hits    int64                  `json:"hits"`
	Misses  int64                  `json:"misses"`
	Classes map[StorageClass]int64 `json:"classes,omitempty"`
}

// SweepResult summarizes one lifecycle pass over the cold store.
type SweepResult struct {
	Transitioned int64 `json:"transitioned"`
	Deleted      int64 `json:"deleted"`
}
