package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracing_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tr, err := newTracing(&buf, "test")
	require.NoError(t, err)

	_, span := tr.Tracer("n8nctl/test").Start(context.Background(), "n8nctl.apply.create")
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"n8nctl.apply.create"`)
	assert.Contains(t, buf.String(), `"Value":"n8nctl"`)
}

func TestNewTracing_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	tr, err := NewTracing(path, "test")
	require.NoError(t, err)

	_, span := tr.Tracer("n8nctl/test").Start(context.Background(), "n8nctl.apply.delete")
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "n8nctl.apply.delete")
}

func TestNewTracing_Disabled(t *testing.T) {
	tr, err := NewTracing("", "test")
	require.NoError(t, err)

	_, span := tr.Tracer("n8nctl/test").Start(context.Background(), "ignored")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))
}
