package rerank

import "sort"

// ToCanonicalResponse turns the backend's sparse score list into the canonical
// response for req.
//
// The steps are, in order: drop out-of-range indices, drop scores below
// score_threshold, sort by score descending (ties by ascending index), keep
// top_n, then attach document text by index. An empty result set is valid.
func ToCanonicalResponse(result BackendResult, req *Request, model string) Response {
	n := len(req.Documents)

	// Keyed by original index; the backend result is not aligned with documents.
	scores := make(map[int]float64, len(result))
	for _, s := range result {
		if s.Index < 0 || s.Index >= n {
			continue
		}
		if req.ScoreThreshold != nil && s.Score < *req.ScoreThreshold {
			continue
		}
		scores[s.Index] = s.Score
	}

	kept := make([]BackendScore, 0, len(scores))
	for idx, score := range scores {
		kept = append(kept, BackendScore{Index: idx, Score: score})
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Index < kept[j].Index
	})

	if req.TopN != nil && *req.TopN < len(kept) {
		kept = kept[:*req.TopN]
	}

	withText := req.ReturnDocuments()
	results := make([]Result, len(kept))
	for i, s := range kept {
		results[i] = Result{
			Index:          s.Index,
			RelevanceScore: s.Score,
		}
		if withText {
			results[i].Document = &Document{Text: req.Documents[s.Index]}
		}
	}

	return Response{
		Model:   model,
		Results: results,
	}
}
