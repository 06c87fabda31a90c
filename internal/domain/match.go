package domain

import "time"

// SignalBreakdown holds the individual comparison signals for a candidate pair
type SignalBreakdown struct {
	Semantic       float64 `json:"semantic"`
	Fuzzy          float64 `json:"fuzzy"`
	PriceProximity float64 `json:"priceProximity"`
	SizeMatch      float64 `json:"sizeMatch"`
}

// Match is a committed source/target pairing
type Match struct {
	SourceID       string          `json:"sourceId"`
	TargetID       string          `json:"targetId"`
	PartitionKey   PartitionKey    `json:"partitionKey"`
	CompositeScore float64         `json:"compositeScore"`
	Signals        SignalBreakdown `json:"signals"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// UnmatchedReason explains why a source record produced no match
type UnmatchedReason string

const (
	ReasonEmptyPartition  UnmatchedReason = "empty_partition"
	ReasonMissingPrice    UnmatchedReason = "missing_price"
	ReasonBelowThreshold  UnmatchedReason = "below_threshold"
	ReasonTargetsConsumed UnmatchedReason = "targets_consumed"
)

// Unmatched is an optional operator-review entry for a source record without a match
type Unmatched struct {
	RecordID     string          `json:"recordId"`
	Source       string          `json:"source"`
	PartitionKey PartitionKey    `json:"partitionKey"`
	BestScore    *float64        `json:"bestScore,omitempty"`
	Reason       UnmatchedReason `json:"reason"`
}

// Cluster is a connected component of the similarity graph.
// Ids are source-scoped: MemberSources[i] is the catalog of MemberIDs[i].
type Cluster struct {
	ID            string   `json:"clusterId"`
	MemberIDs     []string `json:"memberIds"`
	MemberSources []string `json:"memberSources"`
	CanonicalName string   `json:"canonicalName"`
	Sources       []string `json:"sources"`
	PriceSpread   *float64 `json:"priceSpread,omitempty"`
}

// Mode selects the assignment engine
type Mode string

const (
	ModeBipartite Mode = "bipartite"
	ModeGraph     Mode = "graph"
)

// RunResult is everything one engine run hands to the persistence collaborators
type RunResult struct {
	RunID      string      `json:"runId"`
	Mode       Mode        `json:"mode"`
	Matches    []Match     `json:"matches,omitempty"`
	Clusters   []Cluster   `json:"clusters,omitempty"`
	Unmatched  []Unmatched `json:"unmatched,omitempty"`
	Partitions int         `json:"partitions"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}
