package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bdew/MCMultiPart/internal/logging"
	persistlog "github.com/bdew/MCMultiPart/internal/persistence/log"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
	"github.com/bdew/MCMultiPart/internal/sim/parts/kinds"
	"github.com/bdew/MCMultiPart/internal/sim/replica"
	"github.com/bdew/MCMultiPart/internal/sim/world"
)

func main() {
	var (
		journalDir = flag.String("journal", "./data/journal", "dir containing changes-*.jsonl.zst")
		session    = flag.String("session", "", "replay only this world session (default: the last one)")
		toSeq      = flag.Uint64("to_seq", 0, "stop after this change seq within the session (inclusive, optional)")
		wantDigest = flag.String("digest", "", "expected state digest in hex (optional)")
		partTypes  = flag.String("part_types", "", "comma separated part types to enable (default: all built-ins)")
		logLevel   = flag.String("log_level", "warn", "log level")
	)
	flag.Parse()

	logger := logging.New(os.Stderr, *logLevel)

	var enabled []string
	if s := strings.TrimSpace(*partTypes); s != "" {
		enabled = strings.Split(s, ",")
	}
	reg := parts.NewRegistry()
	if err := kinds.RegisterDefaults(reg, enabled); err != nil {
		fmt.Fprintln(os.Stderr, "part types:", err)
		os.Exit(2)
	}
	files, err := persistlog.ListChangeFiles(*journalDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *journalDir)
		os.Exit(1)
	}

	r := &replayer{
		session: *session,
		toSeq:   *toSeq,
		newReplica: func() (*replica.Replica, error) {
			return replica.New(replica.Config{}, reg, logger)
		},
	}
	for _, path := range files {
		err := persistlog.ReadChangeFile(path, r.apply)
		if errors.Is(err, errDone) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}

	if r.rep == nil {
		fmt.Fprintln(os.Stderr, "no changes replayed")
		os.Exit(1)
	}
	rep := r.rep
	digest := fmt.Sprintf("%016x", rep.Digest())
	fmt.Printf("replay ok: session=%s sessions=%d changes=%d skipped=%d last_seq=%d parts=%d containers=%d digest=%s\n",
		r.current, r.sessions, r.applied, r.skipped, r.lastSeq, rep.Store().Len(), rep.Store().ContainerCount(), digest)

	if *wantDigest != "" {
		want, err := strconv.ParseUint(strings.TrimPrefix(*wantDigest, "0x"), 16, 64)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -digest:", err)
			os.Exit(2)
		}
		if want != rep.Digest() {
			fmt.Fprintf(os.Stderr, "digest mismatch: got=%s want=%016x\n", digest, want)
			os.Exit(1)
		}
	}
}

var errDone = errors.New("done")

// replayer rebuilds world state from journal entries. World state lives only
// in memory, so every session starts from an empty replica.
type replayer struct {
	session    string
	toSeq      uint64
	newReplica func() (*replica.Replica, error)

	rep      *replica.Replica
	current  string
	sessions int
	lastSeq  uint64
	applied  int
	skipped  int
	done     bool
}

func (r *replayer) apply(e world.ChangeLogEntry) error {
	if r.session != "" && e.Session != r.session {
		if r.current == r.session {
			return errDone
		}
		return nil
	}
	if r.rep == nil || e.Session != r.current {
		rep, err := r.newReplica()
		if err != nil {
			return err
		}
		r.rep, r.current = rep, e.Session
		r.sessions++
		r.lastSeq, r.applied, r.skipped, r.done = 0, 0, 0, false
	}
	if r.done || (r.toSeq != 0 && e.Seq > r.toSeq) {
		// Later sessions may follow; keep scanning.
		r.done = true
		return nil
	}
	if r.lastSeq != 0 && e.Seq != r.lastSeq+1 {
		return fmt.Errorf("seq gap: after %d got %d", r.lastSeq, e.Seq)
	}
	r.lastSeq = e.Seq

	rec, err := change.Decode(e.Record)
	if err != nil {
		return fmt.Errorf("seq %d: %w", e.Seq, err)
	}
	if rec.Kind.String() != e.Kind || rec.ID.String() != e.PartID {
		return fmt.Errorf("seq %d: record does not match entry (%s vs %s %s)", e.Seq, rec, e.Kind, e.PartID)
	}
	if err := r.rep.Apply(rec); err != nil {
		// Same policy as a live replica: a bad record is skipped, not fatal.
		r.skipped++
		return nil
	}
	r.applied++
	return nil
}
