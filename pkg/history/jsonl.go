package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// jsonlSink appends one line per session event so external tools can tail it.
type jsonlSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

type jsonlRow struct {
	Event string `json:"event"`
	Entry
}

func newJSONLSink(path string) (*jsonlSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, pkgerrors.New("history: jsonl path is empty")
	}
	if err := ensureDir(filepath.Dir(trimmed)); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "history: open jsonl file failed")
	}
	return &jsonlSink{path: trimmed, file: file, writer: bufio.NewWriter(file)}, nil
}

func (j *jsonlSink) Started(_ context.Context, e Entry) error {
	return j.write(jsonlRow{Event: "started", Entry: e})
}

func (j *jsonlSink) Finished(_ context.Context, e Entry) error {
	return j.write(jsonlRow{Event: "finished", Entry: e})
}

func (j *jsonlSink) write(row jsonlRow) error {
	if j == nil || j.writer == nil {
		return pkgerrors.New("history: jsonl writer nil")
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return pkgerrors.Wrap(err, "history: marshal json payload failed")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.Write(payload); err != nil {
		return pkgerrors.Wrap(err, "history: write json payload failed")
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return pkgerrors.Wrap(err, "history: write newline failed")
	}
	if err := j.writer.Flush(); err != nil {
		return pkgerrors.Wrap(err, "history: flush json writer failed")
	}
	return nil
}

func (j *jsonlSink) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.writer != nil {
		if err := j.writer.Flush(); err != nil {
			return pkgerrors.Wrap(err, "history: flush on close failed")
		}
	}
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return pkgerrors.Wrap(err, "history: close json file failed")
		}
	}
	return nil
}

func (j *jsonlSink) Name() string {
	if j == nil || j.path == "" {
		return "jsonl"
	}
	return j.path
}
