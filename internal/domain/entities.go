package domain

// Chunk is a contiguous span of a document's normalized text. Offsets are
// half-open rune indices into the normalized text.
type Chunk struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Order     int    `json:"order"`
	Length    int    `json:"length"`
}

// DocumentMeta holds the fields shared by every chunk of one document.
// Source, Title and Category are optional; an empty string means absent.
type DocumentMeta struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source,omitempty"`
	Title      string `json:"title,omitempty"`
	Category   string `json:"category,omitempty"`
}

// ChunkBatch is the ordered chunk set of a single ingestion run.
type ChunkBatch struct {
	Meta   DocumentMeta
	Chunks []Chunk
}

// Contents returns the chunk texts in order.
func (b ChunkBatch) Contents() []string {
	texts := make([]string, len(b.Chunks))
	for i, c := range b.Chunks {
		texts[i] = c.Content
	}
	return texts
}

// ValidationReport describes coverage health of a chunk set. It is advisory:
// gaps are logged, never fatal.
type ValidationReport struct {
	IsValid  bool  `json:"is_valid"`
	Gaps     []int `json:"gaps"`
	Overlaps []int `json:"overlaps"`
}

// TotalGap is the number of characters not covered between adjacent chunks.
func (r ValidationReport) TotalGap() int {
	total := 0
	for _, g := range r.Gaps {
		total += g
	}
	return total
}

// RecordMetadata is the durable per-chunk metadata. DocumentID and Order are
// what retrieval groups and sorts by, so they must survive unchanged.
type RecordMetadata struct {
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	Order      int    `json:"order"`
	Length     int    `json:"length"`
	Source     string `json:"source,omitempty"`
	Title      string `json:"title,omitempty"`
	Category   string `json:"category,omitempty"`
	DocumentID string `json:"document_id"`
}

// Record is one persisted chunk together with its embedding.
type Record struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding"`
	Metadata  RecordMetadata `json:"metadata"`
}

// Document summarizes a persisted document.
type Document struct {
	DocumentMeta
	UserID     string `json:"user_id"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  int64  `json:"created_at"`
}

// Upload is the input of one ingestion request.
type Upload struct {
	Filename string
	Data     []byte
	UserID   string
	Category string
	Title    string
}

// Response is the single result returned to the upload layer.
type Response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}
