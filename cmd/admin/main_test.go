package main

import (
	"testing"

	"github.com/bdew/MCMultiPart/internal/persistence/indexdb"
)

func TestParseVec3(t *testing.T) {
	v, err := parseVec3(" 1, -64 ,300")
	if err != nil {
		t.Fatalf("parseVec3: %v", err)
	}
	if v != [3]int32{1, -64, 300} {
		t.Fatalf("parseVec3 = %v", v)
	}
	for _, bad := range []string{"", "1,2", "a,b,c", "1,2,3,4"} {
		if _, err := parseVec3(bad); err == nil {
			t.Fatalf("parseVec3(%q) accepted", bad)
		}
	}
}

func TestTail(t *testing.T) {
	rows := []indexdb.ChangeRow{{Seq: 1}, {Seq: 2}, {Seq: 3}}
	if got := tail(rows, 2); len(got) != 2 || got[0].Seq != 2 {
		t.Fatalf("tail 2 = %+v", got)
	}
	if got := tail(rows, 0); len(got) != 3 {
		t.Fatalf("tail 0 = %+v", got)
	}
}

func TestAdminURL(t *testing.T) {
	if got := adminURL(" http://127.0.0.1:8080/ ", "/admin/v1/state"); got != "http://127.0.0.1:8080/admin/v1/state" {
		t.Fatalf("adminURL = %q", got)
	}
}
