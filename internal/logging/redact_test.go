package logging

import (
	"testing"

	"github.com/fyrsmithlabs/rerankd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("super-secret-value"))
	assert.Equal(t, "[REDACTED:18]", f.String)

	f = Secret("api_key", config.Secret(""))
	assert.Equal(t, "", f.String)
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("token", "abcd")
	assert.Equal(t, "[REDACTED:4]", f.String)
}

func TestNewRedactingEncoder_Errors(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	_, err := NewRedactingEncoder(base, RedactionConfig{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)

	enc, err := NewRedactingEncoder(base, RedactionConfig{Enabled: false, Patterns: []string{"("}})
	require.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestRedactingEncoder_Keys(t *testing.T) {
	base := zapcore.NewMapObjectEncoder()
	enc := &RedactingEncoder{Encoder: jsonLike{base}, keys: map[string]bool{"authorization": true}}

	enc.AddString("Authorization", "Bearer x")
	enc.AddString("query", "q")
	enc.AddByteString("authorization", []byte("x"))

	assert.Equal(t, "[REDACTED]", base.Fields["Authorization"])
	assert.Equal(t, "q", base.Fields["query"])
	assert.Equal(t, "[REDACTED]", base.Fields["authorization"])
}

func TestRedactingEncoder_CloneKeepsRules(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, NewDefaultConfig().Redaction)
	require.NoError(t, err)

	clone, ok := enc.Clone().(*RedactingEncoder)
	require.True(t, ok)
	assert.True(t, clone.sensitive("API_KEY"))
	assert.Len(t, clone.patterns, len(enc.patterns))
}

// jsonLike adapts a MapObjectEncoder to zapcore.Encoder for key assertions.
type jsonLike struct {
	*zapcore.MapObjectEncoder
}

func (j jsonLike) Clone() zapcore.Encoder { return j }

func (j jsonLike) EncodeEntry(zapcore.Entry, []zapcore.Field) (*buffer.Buffer, error) {
	return nil, nil
}
