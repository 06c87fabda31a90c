package store

import (
	"strings"
	"time"

	"github.com/paramed/reconciler/internal/domain"
)

// recordRow is a cleaned product listing
type recordRow struct {
	Source        string `gorm:"primaryKey;type:varchar(64)"`
	ID            string `gorm:"primaryKey;type:varchar(128)"`
	Brand         string `gorm:"index"`
	Category      string
	SizeToken     string
	CanonicalName string `gorm:"not null"`
	DisplayName   string
	Price         *float64
	URL           string
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (recordRow) TableName() string { return "records" }

// runRow keeps the history of finished runs
type runRow struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Mode       string
	Partitions int
	Matches    int
	Clusters   int
	Unmatched  int
	StartedAt  time.Time
	FinishedAt time.Time `gorm:"index"`
}

func (runRow) TableName() string { return "runs" }

type matchRow struct {
	ID             uint   `gorm:"primaryKey"`
	RunID          string `gorm:"index;type:varchar(36)"`
	SourceID       string `gorm:"uniqueIndex:idx_match_source"`
	TargetID       string `gorm:"uniqueIndex:idx_match_target"`
	PartitionKey   string
	CompositeScore float64
	Semantic       float64
	Fuzzy          float64
	PriceProximity float64
	SizeMatch      float64
	CreatedAt      time.Time
}

func (matchRow) TableName() string { return "matches" }

type clusterRow struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	RunID         string `gorm:"index;type:varchar(36)"`
	Position      int
	CanonicalName string
	Sources       string
	PriceSpread   *float64
	Members       []clusterMemberRow `gorm:"foreignKey:ClusterID;constraint:OnDelete:CASCADE"`
}

func (clusterRow) TableName() string { return "clusters" }

type clusterMemberRow struct {
	ClusterID string `gorm:"primaryKey;type:varchar(36)"`
	Source    string `gorm:"primaryKey"`
	RecordID  string `gorm:"primaryKey"`
	Position  int
}

func (clusterMemberRow) TableName() string { return "cluster_members" }

type unmatchedRow struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"index;type:varchar(36)"`
	RecordID     string
	Source       string
	PartitionKey string
	BestScore    *float64
	Reason       string
}

func (unmatchedRow) TableName() string { return "unmatched" }

func toRecordRow(r domain.Record) recordRow {
	return recordRow{
		Source:        r.Source,
		ID:            r.ID,
		Brand:         r.Brand,
		Category:      r.Category,
		SizeToken:     r.SizeToken,
		CanonicalName: r.CanonicalName,
		DisplayName:   r.DisplayName,
		Price:         r.Price,
		URL:           r.URL,
	}
}

func (r recordRow) toDomain() domain.Record {
	return domain.Record{
		ID:            r.ID,
		Source:        r.Source,
		Brand:         r.Brand,
		Category:      r.Category,
		SizeToken:     r.SizeToken,
		CanonicalName: r.CanonicalName,
		DisplayName:   r.DisplayName,
		Price:         r.Price,
		URL:           r.URL,
	}
}

func toMatchRow(runID string, m domain.Match) matchRow {
	return matchRow{
		RunID:          runID,
		SourceID:       m.SourceID,
		TargetID:       m.TargetID,
		PartitionKey:   string(m.PartitionKey),
		CompositeScore: m.CompositeScore,
		Semantic:       m.Signals.Semantic,
		Fuzzy:          m.Signals.Fuzzy,
		PriceProximity: m.Signals.PriceProximity,
		SizeMatch:      m.Signals.SizeMatch,
		CreatedAt:      m.CreatedAt,
	}
}

func (m matchRow) toDomain() domain.Match {
	return domain.Match{
		SourceID:       m.SourceID,
		TargetID:       m.TargetID,
		PartitionKey:   domain.PartitionKey(m.PartitionKey),
		CompositeScore: m.CompositeScore,
		Signals: domain.SignalBreakdown{
			Semantic:       m.Semantic,
			Fuzzy:          m.Fuzzy,
			PriceProximity: m.PriceProximity,
			SizeMatch:      m.SizeMatch,
		},
		CreatedAt: m.CreatedAt,
	}
}

func toClusterRow(runID string, position int, c domain.Cluster) clusterRow {
	row := clusterRow{
		ID:            c.ID,
		RunID:         runID,
		Position:      position,
		CanonicalName: c.CanonicalName,
		Sources:       strings.Join(c.Sources, ","),
		PriceSpread:   c.PriceSpread,
	}
	for i, id := range c.MemberIDs {
		var source string
		if i < len(c.MemberSources) {
			source = c.MemberSources[i]
		}
		row.Members = append(row.Members, clusterMemberRow{ClusterID: c.ID, Source: source, RecordID: id, Position: i})
	}
	return row
}

func (c clusterRow) toDomain() domain.Cluster {
	out := domain.Cluster{
		ID:            c.ID,
		CanonicalName: c.CanonicalName,
		PriceSpread:   c.PriceSpread,
		MemberIDs:     make([]string, 0, len(c.Members)),
		MemberSources: make([]string, 0, len(c.Members)),
	}
	if c.Sources != "" {
		out.Sources = strings.Split(c.Sources, ",")
	}
	for _, m := range c.Members {
		out.MemberIDs = append(out.MemberIDs, m.RecordID)
		out.MemberSources = append(out.MemberSources, m.Source)
	}
	return out
}

func toUnmatchedRow(runID string, u domain.Unmatched) unmatchedRow {
	return unmatchedRow{
		RunID:        runID,
		RecordID:     u.RecordID,
		Source:       u.Source,
		PartitionKey: string(u.PartitionKey),
		BestScore:    u.BestScore,
		Reason:       string(u.Reason),
	}
}

func (u unmatchedRow) toDomain() domain.Unmatched {
	return domain.Unmatched{
		RecordID:     u.RecordID,
		Source:       u.Source,
		PartitionKey: domain.PartitionKey(u.PartitionKey),
		BestScore:    u.BestScore,
		Reason:       domain.UnmatchedReason(u.Reason),
	}
}
