package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bdew/MCMultiPart/internal/sim/world"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	// onClosed is called with each finished file, under the writer lock.
	onClosed func(path string)

	mu      sync.Mutex
	curHour string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	// Never append: each file holds exactly one zstd stream.
	path := w.pathForHour(hour)
	for n := 1; fileExists(path); n++ {
		path = filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.%d.jsonl.zst", w.prefix, hour, n))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	w.curPath = path
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	if w.curPath != "" && w.onClosed != nil && err1 == nil {
		w.onClosed(w.curPath)
	}
	w.w = nil
	w.curHour = ""
	w.curPath = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ChangeLogger journals every authoritative change (compressed JSONL).
type ChangeLogger struct{ w *JSONLZstdWriter }

func NewChangeLogger(dir string) *ChangeLogger {
	return &ChangeLogger{w: NewJSONLZstdWriter(dir, "changes")}
}

func (l *ChangeLogger) WriteChange(v world.ChangeLogEntry) error { return l.w.Write(v) }

func (l *ChangeLogger) Close() error { return l.w.Close() }

// OnFileClosed registers fn to receive the path of every journal file once
// it is complete (on rotation and on Close). Call it before the first write.
func (l *ChangeLogger) OnFileClosed(fn func(path string)) { l.w.onClosed = fn }

// ListChangeFiles returns the journal files in dir in write order.
func ListChangeFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "changes-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return journalKey(names[i]) < journalKey(names[j]) })
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// journalKey orders "changes-H.jsonl.zst" before "changes-H.1.jsonl.zst"
// before "changes-H.2.jsonl.zst".
func journalKey(name string) string {
	base := strings.TrimSuffix(strings.TrimPrefix(name, "changes-"), ".jsonl.zst")
	hour, suffix, _ := strings.Cut(base, ".")
	n, _ := strconv.Atoi(suffix)
	return fmt.Sprintf("%s.%08d", hour, n)
}

// ReadChangeFile calls fn for every entry in one journal file.
func ReadChangeFile(path string, fn func(world.ChangeLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		var entry world.ChangeLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return sc.Err()
}
