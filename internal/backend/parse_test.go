package backend

import (
	"testing"

	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name string
		body string
		want rerank.BackendResult
	}{
		{
			name: "ordered",
			body: `[{"index":0,"score":0.878},{"index":1,"score":0.385}]`,
			want: rerank.BackendResult{{Index: 0, Score: 0.878}, {Index: 1, Score: 0.385}},
		},
		{
			name: "unordered with extra fields",
			body: `[{"index":2,"score":0.1,"text":"x"},{"score":0.9,"index":0}]`,
			want: rerank.BackendResult{{Index: 2, Score: 0.1}, {Index: 0, Score: 0.9}},
		},
		{
			name: "numeric string index",
			body: `[{"index":"3","score":-1.5}]`,
			want: rerank.BackendResult{{Index: 3, Score: -1.5}},
		},
		{
			name: "integral float index",
			body: `[{"index":1.0,"score":1e-3}]`,
			want: rerank.BackendResult{{Index: 1, Score: 0.001}},
		},
		{
			name: "numeric string score",
			body: `[{"index":0,"score":"0.25"},{"index":1,"score":"-3e2"}]`,
			want: rerank.BackendResult{{Index: 0, Score: 0.25}, {Index: 1, Score: -300}},
		},
		{
			name: "index beyond exact float range",
			body: `[{"index":1e20,"score":0.5},{"index":0,"score":0.4}]`,
			want: rerank.BackendResult{{Index: outOfRangeIndex, Score: 0.5}, {Index: 0, Score: 0.4}},
		},
		{
			name: "string index beyond int range",
			body: `[{"index":"99999999999999999999","score":0.5}]`,
			want: rerank.BackendResult{{Index: outOfRangeIndex, Score: 0.5}},
		},
		{
			name: "several oversized indices",
			body: `[{"index":1e20,"score":0.5},{"index":"99999999999999999999","score":0.4}]`,
			want: rerank.BackendResult{{Index: outOfRangeIndex, Score: 0.5}, {Index: outOfRangeIndex, Score: 0.4}},
		},
		{
			name: "empty array",
			body: ` [] `,
			want: rerank.BackendResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResult([]byte(tt.body))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseResult() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseResult_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty body", ``, "invalid JSON"},
		{"truncated", `[{"index":0,"score":0.5}`, "invalid JSON"},
		{"html error page", `<html>502</html>`, "invalid JSON"},
		{"object wrapper", `{"results":[{"index":0,"score":0.5}]}`, "not a JSON array"},
		{"null", `null`, "not a JSON array"},
		{"element not object", `[0.5]`, "is not an object"},
		{"missing index", `[{"score":0.5}]`, "invalid index"},
		{"null index", `[{"index":null,"score":0.5}]`, "invalid index"},
		{"negative index", `[{"index":-1,"score":0.5}]`, "invalid index"},
		{"fractional index", `[{"index":1.5,"score":0.5}]`, "invalid index"},
		{"non numeric string index", `[{"index":"one","score":0.5}]`, "invalid index"},
		{"bool index", `[{"index":true,"score":0.5}]`, "invalid index"},
		{"missing score", `[{"index":0}]`, "invalid score"},
		{"non numeric string score", `[{"index":0,"score":"high"}]`, "invalid score"},
		{"nan string score", `[{"index":0,"score":"NaN"}]`, "invalid score"},
		{"infinite string score", `[{"index":0,"score":"1e999"}]`, "invalid score"},
		{"null score", `[{"index":0,"score":null}]`, "invalid score"},
		{"negative string index", `[{"index":"-1","score":0.5}]`, "invalid index"},
		{"negative huge index", `[{"index":-1e20,"score":0.5}]`, "invalid index"},
		{"repeated index key", `[{"index":0,"index":1,"score":0.5}]`, `repeats key "index"`},
		{"repeated score key", `[{"index":0,"score":0.5,"score":0.9}]`, `repeats key "score"`},
		{"overflow score", `[{"index":0,"score":1e999}]`, "invalid score"},
		{"duplicate index", `[{"index":0,"score":0.5},{"index":"0","score":0.4}]`, "repeats index 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResult([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, rerank.ErrBackendProtocol)
			assert.Contains(t, rerank.PublicMessage(err), tt.wantMsg)
		})
	}
}

func TestParseResult_OversizedIndexIsDropped(t *testing.T) {
	result, err := ParseResult([]byte(`[{"index":"99999999999999999999","score":0.9},{"index":1,"score":0.4},{"index":1e20,"score":0.8}]`))
	require.NoError(t, err)

	req := &rerank.Request{Query: "q", Documents: []string{"a", "b"}}
	resp := rerank.ToCanonicalResponse(result, req, "m")

	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Results[0].Index)
	assert.Equal(t, 0.4, resp.Results[0].RelevanceScore)
}
