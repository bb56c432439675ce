package ingest

// Chunking constants follow the original training pipeline: 500-character
// target with 100 characters of overlap between neighbours.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// Chunk splits text into fixed-size overlapping fragments. Boundaries are
// rune-based so multi-byte text never splits mid-character. The output is
// fully determined by the input and the two constants; overlap must be
// smaller than size.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)

	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
