package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkAppendAndRead(t *testing.T) {
	sink, err := NewFileSink(FileSinkConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	defer sink.Close()

	for _, action := range []string{"organization.created", "membership.added"} {
		e := NewEntry(actor, "org-1", CategoryOrganization, action)
		e.ID = action
		e.Metadata = map[string]interface{}{"k": "v"}
		require.NoError(t, sink.Append(context.Background(), e))
	}

	entries, err := sink.ReadEntries(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "organization.created", entries[0].Action)
	assert.Equal(t, "v", entries[1].Metadata["k"])

	first, err := sink.ReadEntries(1)
	require.NoError(t, err)
	assert.Len(t, first, 1)
}

func TestFileSinkRotation(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileSinkConfig{Dir: dir, Rotate: true, MaxSize: 64, MaxFiles: 2})
	require.NoError(t, err)
	defer sink.Close()

	for i := 0; i < 8; i++ {
		e := NewEntry(actor, "org-1", CategoryRole, "role.updated")
		e.Description = "a description long enough to pass the rotation threshold"
		require.NoError(t, sink.Append(context.Background(), e))
	}

	rotated, err := sink.RotatedFiles()
	require.NoError(t, err)
	assert.NotEmpty(t, rotated)
	assert.LessOrEqual(t, len(rotated), 2)
}

func TestFileSinkClosed(t *testing.T) {
	sink, err := NewFileSink(FileSinkConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err = sink.Append(context.Background(), NewEntry(actor, "", CategorySystem, "x"))
	assert.Error(t, err)
}

func TestFileSinkRequiresDir(t *testing.T) {
	_, err := NewFileSink(FileSinkConfig{})
	assert.Error(t, err)
}
