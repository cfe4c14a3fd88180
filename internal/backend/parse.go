package backend

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"github.com/tidwall/gjson"
)

const (
	// maxExactIndex is the largest integer a JSON number carries without loss.
	maxExactIndex = 1 << 53

	// outOfRangeIndex stands in for a well-formed index too large to
	// represent. It is never a valid document position.
	outOfRangeIndex = math.MaxInt
)

// ParseResult decodes a backend body: a JSON array of {"index", "score"}
// objects in any order. Anything else is a backend protocol error; a body
// is never coerced into a partial result.
//
// index may be a JSON number or a numeric string and must be a
// non-negative integer. score may be a JSON number or a numeric string and
// must be finite. Indices are not range-checked here because the response
// translator drops out-of-range entries, but a repeated index is rejected,
// as is an object that repeats the index or score key.
func ParseResult(body []byte) (rerank.BackendResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, rerank.Protocol("backend returned invalid JSON", nil)
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, rerank.Protocol("backend response is not a JSON array", nil)
	}

	elems := root.Array()
	result := make(rerank.BackendResult, 0, len(elems))
	seen := make(map[int]struct{}, len(elems))

	for i, el := range elems {
		if !el.IsObject() {
			return nil, rerank.Protocol(fmt.Sprintf("backend result %d is not an object", i), nil)
		}
		if key, ok := repeatedKey(el); ok {
			return nil, rerank.Protocol(fmt.Sprintf("backend result %d repeats key %q", i, key), nil)
		}

		index, err := parseIndex(el.Get("index"))
		if err != nil {
			return nil, rerank.Protocol(fmt.Sprintf("backend result %d has an invalid index", i), err)
		}
		score, err := parseScore(el.Get("score"))
		if err != nil {
			return nil, rerank.Protocol(fmt.Sprintf("backend result %d has an invalid score", i), err)
		}

		if index != outOfRangeIndex {
			if _, dup := seen[index]; dup {
				return nil, rerank.Protocol(fmt.Sprintf("backend result %d repeats index %d", i, index), nil)
			}
			seen[index] = struct{}{}
		}

		result = append(result, rerank.BackendScore{Index: index, Score: score})
	}

	return result, nil
}

// repeatedKey reports the first of index or score that appears twice in el.
func repeatedKey(el gjson.Result) (string, bool) {
	var indexes, scores int
	repeated := ""
	el.ForEach(func(key, _ gjson.Result) bool {
		switch key.Str {
		case "index":
			indexes++
		case "score":
			scores++
		default:
			return true
		}
		if indexes > 1 || scores > 1 {
			repeated = key.Str
			return false
		}
		return true
	})
	return repeated, repeated != ""
}

// parseIndex maps integers beyond the exact or int range to outOfRangeIndex.
func parseIndex(v gjson.Result) (int, error) {
	switch v.Type {
	case gjson.Number:
		f := v.Num
		if math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 {
			return 0, fmt.Errorf("index %s is not a non-negative integer", v.Raw)
		}
		if f > maxExactIndex || f > math.MaxInt {
			return outOfRangeIndex, nil
		}
		return int(f), nil
	case gjson.String:
		n, err := strconv.ParseUint(v.Str, 10, 64)
		if err != nil {
			var numErr *strconv.NumError
			if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
				return outOfRangeIndex, nil
			}
			return 0, fmt.Errorf("index %q is not a non-negative integer", v.Str)
		}
		if n > math.MaxInt {
			return outOfRangeIndex, nil
		}
		return int(n), nil
	default:
		if !v.Exists() {
			return 0, fmt.Errorf("missing index")
		}
		return 0, fmt.Errorf("index has type %s", v.Type)
	}
}

func parseScore(v gjson.Result) (float64, error) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		n, err := strconv.ParseFloat(v.Str, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("score %q is not a number", v.Str)
		}
		f = n
	default:
		if !v.Exists() {
			return 0, fmt.Errorf("missing score")
		}
		return 0, fmt.Errorf("score has type %s", v.Type)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("score %s is not finite", v.Raw)
	}
	return f, nil
}
