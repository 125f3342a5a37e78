package resource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestList_Persistence(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "resources.yaml")
	l := NewList(path, nil)
	require.NoError(l.Load())
	require.Empty(l.Entries())

	added, err := l.Add(Entry{Name: "gpib0::22::instr", Alias: "dmm"})
	require.NoError(err)
	require.True(added)
	added, err = l.Add(Entry{Name: "GPIB0::22::INSTR"})
	require.NoError(err)
	require.False(added)
	_, err = l.Add(Entry{Name: "TCPIP0::10.0.0.9::5025::SOCKET", Alias: "DMM"})
	require.ErrorIs(err, ErrDuplicateAlias)
	_, err = l.Add(Entry{Name: "not a resource"})
	require.ErrorIs(err, ErrInvalidName)

	_, err = l.Add(Entry{Name: "TCPIP0::10.0.0.9::5025::SOCKET", Alias: "smu", Description: "bench 2"})
	require.NoError(err)

	require.True(l.Contains("DMM"))
	require.True(l.Contains("gpib0::22::INSTR"))
	name, err := l.Resolve("smu")
	require.NoError(err)
	require.Equal("TCPIP0::10.0.0.9::5025::SOCKET", name)

	names, err := l.Names("GPIB?*")
	require.NoError(err)
	require.Equal([]string{"GPIB0::22::INSTR"}, names)
	names, err = l.Names("")
	require.NoError(err)
	require.Len(names, 2)

	require.NoError(l.Save())

	other := NewList(path, nil)
	require.NoError(other.Load())
	require.Equal(l.Entries(), other.Entries())

	require.NoError(l.Backup(""))
	require.NoError(l.Remove("dmm"))
	require.ErrorIs(l.Remove("dmm"), ErrNotFound)
	require.NoError(l.Save())
	require.False(l.Contains("dmm"))

	require.NoError(l.Restore(""))
	require.True(l.Contains("dmm"))
	require.NoError(other.Load())
	require.Len(other.Entries(), 2)
}

func TestList_LoadInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("resources:\n  - name: FOO::1\n"), 0o600))
	require.ErrorIs(t, NewList(bad, nil).Load(), ErrInvalidName)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("instruments: []\n"), 0o600))
	require.Error(t, NewList(unknown, nil).Load())
}

func TestList_Watch(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "resources.yaml")
	l := NewList(path, nil)
	_, err := l.Add(Entry{Name: "GPIB0::1::INSTR"})
	require.NoError(err)
	require.NoError(l.Save())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []Entry, 4)
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx, func(e []Entry) { got <- e }) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	writer := NewList(path, nil)
	require.NoError(writer.Load())
	_, err = writer.Add(Entry{Name: "GPIB0::2::INSTR", Alias: "psu"})
	require.NoError(err)
	require.NoError(writer.Save())

	select {
	case entries := <-got:
		require.Len(entries, 2)
		require.True(l.Contains("psu"))
	case <-time.After(3 * time.Second):
		require.Fail("no reload")
	}

	cancel()
	require.NoError(<-done)
}
