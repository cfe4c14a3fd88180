package rerank

import (
	"fmt"
	"math"
)

// Policy holds the backend-only fields of BackendRequest. They are a static
// property of the proxy instance and never derived from the client request.
type Policy struct {
	Truncate            bool                `koanf:"truncate"`
	TruncationDirection TruncationDirection `koanf:"truncation_direction"`
	RawScores           bool                `koanf:"raw_scores"`
}

// DefaultPolicy returns truncate=true, direction=Right, raw_scores=false.
func DefaultPolicy() Policy {
	return Policy{
		Truncate:            true,
		TruncationDirection: TruncateRight,
		RawScores:           false,
	}
}

// Validate checks the truncation direction.
func (p Policy) Validate() error {
	switch p.TruncationDirection {
	case TruncateLeft, TruncateRight:
		return nil
	default:
		return fmt.Errorf("truncation_direction must be %q or %q, got %q", TruncateLeft, TruncateRight, p.TruncationDirection)
	}
}

// Validate returns a ValidationError if the request cannot be sent to the backend.
// Document contents are opaque here; size limits belong to the backend.
func (r *Request) Validate() error {
	if r.Query == "" {
		return Validation("query must not be empty")
	}
	if len(r.Documents) == 0 {
		return Validation("documents must not be empty")
	}
	if r.TopN != nil && *r.TopN < 1 {
		return Validation(fmt.Sprintf("top_n must be a positive integer, got %d", *r.TopN))
	}
	if r.ScoreThreshold != nil {
		t := *r.ScoreThreshold
		if math.IsNaN(t) || t < 0 || t > 1 {
			return Validation(fmt.Sprintf("score_threshold must be within [0, 1], got %v", t))
		}
	}
	return nil
}

// ToBackendRequest builds the backend request for req. texts[i] is documents[i]
// for every i. top_n, score_threshold, model and return_documents stay on this
// side of the backend call.
func ToBackendRequest(req *Request, policy Policy) BackendRequest {
	texts := make([]string, len(req.Documents))
	copy(texts, req.Documents)

	return BackendRequest{
		Query:               req.Query,
		Texts:               texts,
		Truncate:            policy.Truncate,
		TruncationDirection: policy.TruncationDirection,
		RawScores:           policy.RawScores,
	}
}
