package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultMaxResultBytes is the largest serialized result_data persisted with a job.
const DefaultMaxResultBytes = 1 << 20

// Result metadata keys written by the orchestrator itself.
const (
	MetaDataTooLarge     = "data_too_large"
	MetaDataSizeMB       = "data_size_mb"
	MetaDataSizeBytes    = "data_size_bytes"
	MetaRowLimitHit      = "row_limit_reached"
	MetaMaxRows          = "max_rows"
	MetaRetryCount       = "retry_count"
	MetaTotalRows        = "total_rows"
	MetaChannelsWithData = "channels_with_data"
)

// Row is one record produced by a work function.
type Row map[string]any

// WorkResult is what a work function returns on success.
type WorkResult struct {
	Rows     []Row
	Metadata map[string]any
}

// JobResult is the serialized, size-capped form of a WorkResult as persisted by the store.
type JobResult struct {
	Data     json.RawMessage // nil when the payload exceeded the cap
	Metadata json.RawMessage
}

// CapResult serializes a WorkResult, dropping the row payload when it exceeds maxBytes.
// When the payload is dropped the metadata records the fact and the measured size.
// The input metadata map is not modified.
func CapResult(res WorkResult, maxBytes int) (JobResult, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResultBytes
	}

	rows := res.Rows
	if rows == nil {
		rows = []Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return JobResult{}, fmt.Errorf("marshal result data: %w", err)
	}

	meta := make(map[string]any, len(res.Metadata)+3)
	for k, v := range res.Metadata {
		meta[k] = v
	}

	out := JobResult{Data: data}
	if len(data) > maxBytes {
		out.Data = nil
		meta[MetaDataTooLarge] = true
		meta[MetaDataSizeMB] = math.Round(float64(len(data))/(1<<20)*100) / 100
		meta[MetaDataSizeBytes] = len(data)
	}

	out.Metadata, err = json.Marshal(meta)
	if err != nil {
		return JobResult{}, fmt.Errorf("marshal result metadata: %w", err)
	}
	return out, nil
}
