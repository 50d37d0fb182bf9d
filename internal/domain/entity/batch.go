package entity

import "time"

// ClusterRef identifies one cluster by its full store key, since a
// PendingSummaryBatch's member clusters can span categories (partitions).
type ClusterRef struct {
	ClusterID string
	Category  string
}

// PendingSummaryBatch tracks one in-flight batch-summarization job (
// §4.5 batch path) from submission to completion: which clusters it
// covers, so results can be matched back up and leases released once the
// provider reports the job done.
type PendingSummaryBatch struct {
	BatchID     string
	Clusters    []ClusterRef
	SubmittedAt time.Time

	Version string
}
