// transitions - dump recorded state transitions from a wavemind database.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/entrainlab/go-wavemind/internal/config"
	"github.com/entrainlab/go-wavemind/internal/store"
)

func main() {
	dbPath := flag.String("db", config.String("WAVEMIND_DB", config.DefaultDBPath), "SQLite database path")
	actor := flag.String("actor", "", "filter by actor id")
	limit := flag.Int("limit", 50, "max rows")
	flag.Parse()

	s, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer s.Close()

	rows, err := s.Recent(*actor, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}

	if len(rows) == 0 {
		fmt.Println("no transitions recorded")
		return
	}

	for _, tr := range rows {
		session := tr.SessionID
		if session == "" {
			session = "-"
		} else {
			session = session[:8]
		}
		fmt.Printf("%s  %-10s  %-16s -> %-16s  metric=%.3f  instability=%.3f  session=%s\n",
			tr.At.Local().Format("15:04:05.000"), tr.ActorID, tr.From, tr.To,
			tr.Metric, tr.Instability, session)
	}
}
