package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	persistlog "github.com/bdew/MCMultiPart/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "add":
			addCmd(os.Args[2:])
			return
		case "remove":
			removeCmd(os.Args[2:])
			return
		case "update":
			updateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the change journal files in replay order.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	journalDir := fs.String("journal", "./data/journal", "change journal directory")
	_ = fs.Parse(args)

	files, err := persistlog.ListChangeFiles(*journalDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Println(f)
	}
}

func parseVec3(s string) ([3]int32, error) {
	var v [3]int32
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 32)
		if err != nil {
			return v, err
		}
		v[i] = int32(n)
	}
	return v, nil
}
