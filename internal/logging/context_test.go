package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"uuid", "0b8f5c1e-8d0c-4a4e-9a3b-2d7e3f1c9a10", "0b8f5c1e-8d0c-4a4e-9a3b-2d7e3f1c9a10"},
		{"prefixed", "req_abc.1:2", "req_abc.1:2"},
		{"empty", "", ""},
		{"spaces", "req 1", ""},
		{"newline injection", "req\n{\"level\":\"error\"}", ""},
		{"too long", strings.Repeat("a", 129), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithRequestID(context.Background(), tt.id)
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_RequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	fields := ContextFields(ctx)
	assert.Len(t, fields, 1)
	assert.Equal(t, "request_id", fields[0].Key)
	assert.Equal(t, "abc", fields[0].String)
}
