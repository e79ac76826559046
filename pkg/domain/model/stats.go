package model

import "github.com/metroplan-lab/civitas/pkg/domain/types"

// MemoryStats is an aggregate snapshot of the conversation store
type MemoryStats struct {
	TotalRecords   int                  `json:"total_records"`
	UniqueUsers    int                  `json:"unique_users"`
	UniqueSessions int                  `json:"unique_sessions"`
	RecordsPerUser map[types.UserID]int `json:"records_per_user"`
}
