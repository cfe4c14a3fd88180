// Package rerank defines the canonical and backend rerank schemas and the
// translation between them.
//
// The canonical schema is the one document-retrieval clients speak:
//
//	{"model": "...", "query": "...", "documents": ["..."], "top_n": 3,
//	 "score_threshold": 0.5, "return_documents": true}
//
// The backend schema is the one a text-embeddings-inference style ranking
// engine speaks:
//
//	{"query": "...", "texts": ["..."], "truncate": true,
//	 "truncation_direction": "Right", "raw_scores": false}
//	-> [{"index": 0, "score": 0.87}, ...]
//
// All values here are request-scoped and never shared between requests.
package rerank

// Request is the canonical, client-facing rerank request.
type Request struct {
	// Model is passed through to the response and never interpreted.
	Model string `json:"model"`
	Query string `json:"query"`
	// Documents are the candidate texts. Their position is the original index.
	Documents      []string `json:"documents"`
	TopN           *int     `json:"top_n,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	// ReturnDocumentsFlag is nil when the client omitted it; see ReturnDocuments.
	ReturnDocumentsFlag *bool `json:"return_documents,omitempty"`
}

// ReturnDocuments reports whether results should echo the document text.
// Absent means true.
func (r *Request) ReturnDocuments() bool {
	if r.ReturnDocumentsFlag == nil {
		return true
	}
	return *r.ReturnDocumentsFlag
}

// TruncationDirection selects which end of an over-long text the backend cuts.
type TruncationDirection string

const (
	TruncateLeft  TruncationDirection = "Left"
	TruncateRight TruncationDirection = "Right"
)

// BackendRequest is the body POSTed to the ranking backend.
type BackendRequest struct {
	Query string `json:"query"`
	// Texts has the same order and cardinality as Request.Documents.
	Texts               []string            `json:"texts"`
	Truncate            bool                `json:"truncate"`
	TruncationDirection TruncationDirection `json:"truncation_direction"`
	RawScores           bool                `json:"raw_scores"`
}

// BackendScore is one scored candidate returned by the backend.
type BackendScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// BackendResult is the backend's unordered, possibly sparse score list.
// Indices are unique; the backend may omit candidates it rejected.
type BackendResult []BackendScore

// Document carries an echoed document text.
type Document struct {
	Text string `json:"text"`
}

// Result is one reranked document in the canonical response.
type Result struct {
	Index          int       `json:"index"`
	Document       *Document `json:"document,omitempty"`
	RelevanceScore float64   `json:"relevance_score"`
}

// Response is the canonical rerank response. Results are ordered by
// descending relevance score, ties by ascending index.
type Response struct {
	Model   string   `json:"model"`
	Results []Result `json:"results"`
}
