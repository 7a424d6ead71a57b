package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bdew/MCMultiPart/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := adminURL(*baseURL, "/admin/v1/state")
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func addCmd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	pos := fs.String("pos", "", "block position x,y,z (required)")
	typ := fs.String("type", "", "part type (required)")
	payload := fs.String("payload", "", "initial payload as hex (optional; empty means the type's defaults)")
	_ = fs.Parse(args)

	p := mustVec3(*pos)
	if strings.TrimSpace(*typ) == "" {
		fmt.Fprintln(os.Stderr, "missing -type")
		os.Exit(2)
	}
	postPart(*baseURL, "add", protocol.AddPartRequest{Pos: p, Type: *typ, Payload: mustHex(*payload)})
}

func removeCmd(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	pos := fs.String("pos", "", "block position x,y,z (required)")
	id := fs.String("id", "", "part id (required)")
	_ = fs.Parse(args)

	p := mustVec3(*pos)
	if strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}
	postPart(*baseURL, "remove", protocol.RemovePartRequest{Pos: p, ID: *id})
}

func updateCmd(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	pos := fs.String("pos", "", "block position x,y,z (required)")
	id := fs.String("id", "", "part id (required)")
	payload := fs.String("payload", "", "new payload as hex (required)")
	rerender := fs.Bool("rerender", false, "ask observers to redraw the block")
	_ = fs.Parse(args)

	p := mustVec3(*pos)
	if strings.TrimSpace(*id) == "" || strings.TrimSpace(*payload) == "" {
		fmt.Fprintln(os.Stderr, "missing -id or -payload")
		os.Exit(2)
	}
	postPart(*baseURL, "update", protocol.UpdatePartRequest{Pos: p, ID: *id, Payload: mustHex(*payload), Rerender: *rerender})
}

func postPart(baseURL, op string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(adminURL(baseURL, "/admin/v1/parts/"+op), "application/json", bytes.NewReader(b))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var out protocol.PartResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "bad response (status %d): %v\n", resp.StatusCode, err)
		os.Exit(1)
	}
	if !out.OK {
		fmt.Fprintf(os.Stderr, "%s failed: %s %s\n", op, out.Code, out.Error)
		os.Exit(1)
	}
	fmt.Printf("%s ok: id=%s\n", op, out.ID)
}

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func mustVec3(s string) [3]int32 {
	v, err := parseVec3(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}
	return v
}

func mustHex(s string) []byte {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -payload:", err)
		os.Exit(2)
	}
	return b
}
