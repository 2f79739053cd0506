package concurrent

import (
	"github.com/kget-downloader/kget/internal/engine/types"
)

// PlanChunks splits [resumeOffset, total) into ascending, non-overlapping chunks.
// The chunk size is total/max(2, 2*workers) clamped to [minChunk, maxChunk].
// Nothing is planned when resumeOffset >= total.
func PlanChunks(total, resumeOffset int64, workers int, minChunk, maxChunk int64) []types.Chunk {
	if resumeOffset < 0 {
		resumeOffset = 0
	}
	if total <= 0 || resumeOffset >= total {
		return nil
	}

	target := int64(workers) * 2
	if target < 2 {
		target = 2
	}

	chunkSize := total / target
	if chunkSize < minChunk {
		chunkSize = minChunk
	}
	if maxChunk > 0 && chunkSize > maxChunk {
		chunkSize = maxChunk
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}

	remaining := total - resumeOffset
	chunks := make([]types.Chunk, 0, (remaining+chunkSize-1)/chunkSize)
	for start := resumeOffset; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, types.Chunk{Start: start, End: end})
	}
	return chunks
}
