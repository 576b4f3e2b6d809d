package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"flowswap/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.jsonl")
	sink := NewJsonlStorage(path)
	ctx := context.Background()

	require.NoError(t, sink.PutLogBatch(ctx, nil))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, sink.PutLogBatch(ctx, []model.LogRecord{{BlockNumber: 1, LogIndex: 0}, {BlockNumber: 1, LogIndex: 1}}))
	require.NoError(t, sink.PutLogBatch(ctx, []model.LogRecord{{BlockNumber: 2, LogIndex: 0}}))

	var got []model.LogRecord
	require.NoError(t, ScanJSONL(path, func(line []byte) error {
		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return err
		}
		got = append(got, record)
		return nil
	}))
	require.Len(t, got, 3)
	require.Equal(t, uint64(2), got[2].BlockNumber)
}

func TestJsonlStorageHonorsCancellation(t *testing.T) {
	sink := NewJsonlStorage(filepath.Join(t.TempDir(), "logs.jsonl"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sink.PutLogBatch(ctx, []model.LogRecord{{}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestJSONLWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("stale\nstale\n"), 0o644))

	w, err := NewJSONLWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]int{"a": 1}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n", string(data))
}

func TestScanJSONLSkipsBlankLinesAndStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("1\n\n  \n2\n3\n"), 0o644))

	stop := errors.New("stop")
	var seen []string
	err := ScanJSONL(path, func(line []byte) error {
		seen = append(seen, string(line))
		if len(seen) == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, []string{"1", "2"}, seen)

	require.Error(t, ScanJSONL(filepath.Join(t.TempDir(), "missing.jsonl"), func([]byte) error { return nil }))
}

type failingSink struct{ err error }

func (f failingSink) PutLogBatch(context.Context, []model.LogRecord) error { return f.err }

type countingSink struct{ batches int }

func (c *countingSink) PutLogBatch(context.Context, []model.LogRecord) error {
	c.batches++
	return nil
}

func TestMultiStopsAtFirstFailure(t *testing.T) {
	first, last := &countingSink{}, &countingSink{}
	boom := errors.New("boom")
	err := Multi{first, failingSink{boom}, last}.PutLogBatch(context.Background(), []model.LogRecord{{}})
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "sink 1")
	require.Equal(t, 1, first.batches)
	require.Zero(t, last.batches)
}

func TestJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	var got map[string]uint64
	ok, err := ReadJSONFile(path, &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, WriteJSONFile(path, map[string]uint64{"last": 7}))
	ok, err = ReadJSONFile(path, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got["last"])

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	_, err = ReadJSONFile(filepath.Dir(path), &got)
	require.ErrorContains(t, err, "is a directory")

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = ReadJSONFile(path, &got)
	require.ErrorContains(t, err, "parse")
}
