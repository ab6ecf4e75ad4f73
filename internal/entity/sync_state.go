package entity

// SyncWatermark is the persisted exclusive upper bound of the last processed
// window, in unix milliseconds.
type SyncWatermark struct {
	LastSyncTimestamp int64 `json:"lastSyncTimestamp"`
}

// [exchange] = watermark
type SyncStateDocument map[string]SyncWatermark
