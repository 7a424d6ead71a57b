package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bdew/MCMultiPart/internal/persistence/indexdb"
)

type historyRow struct {
	Session    string   `json:"session"`
	Seq        uint64   `json:"seq"`
	Tick       uint64   `json:"tick"`
	Kind       string   `json:"kind"`
	PartID     string   `json:"part_id"`
	Type       string   `json:"type"`
	Pos        [3]int32 `json:"pos"`
	PayloadLen int      `json:"payload_len"`
	Record     string   `json:"record,omitempty"`
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./data/index.sqlite", "sqlite index path")
	worldID := fs.String("world", "world_1", "world id")
	limit := fs.Int("limit", 50, "show only the newest N history rows (0: all)")
	raw := fs.Bool("raw", false, "include the encoded record as hex")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(*dbPath, *worldID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch q {
	case "sessions":
		ids, err := idx.Sessions(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, id := range ids {
			fmt.Println(id)
		}

	case "types":
		types, err := idx.PartTypes(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, t := range types {
			fmt.Println(t)
		}

	case "part":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: admin db part PART_ID")
			os.Exit(2)
		}
		rows, err := idx.PartHistory(ctx, strings.TrimSpace(fs.Arg(1)))
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		printHistory(rows, *limit, *raw)

	case "at":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: admin db at X,Y,Z")
			os.Exit(2)
		}
		pos, err := parseVec3(fs.Arg(1))
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad position:", err)
			os.Exit(2)
		}
		rows, err := idx.HistoryAt(ctx, pos)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		printHistory(rows, *limit, *raw)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-db PATH] [-world WORLD] [-limit N] [-raw] sessions|types|part PART_ID|at X,Y,Z")
		os.Exit(2)
	}
}

func printHistory(rows []indexdb.ChangeRow, limit int, raw bool) {
	for _, r := range tail(rows, limit) {
		out := historyRow{
			Session:    r.Session,
			Seq:        r.Seq,
			Tick:       r.Tick,
			Kind:       r.Kind,
			PartID:     r.PartID,
			Type:       r.Type,
			Pos:        r.Pos,
			PayloadLen: r.PayloadLen,
		}
		if raw {
			out.Record = hex.EncodeToString(r.Record)
		}
		printJSON(out)
	}
}

func tail(rows []indexdb.ChangeRow, n int) []indexdb.ChangeRow {
	if n <= 0 || len(rows) <= n {
		return rows
	}
	return rows[len(rows)-n:]
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
