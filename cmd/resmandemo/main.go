// Command resmandemo loads every regular file in a directory through a
// resman.Manager, printing a line as each finishes loading, then edits one
// of the files on disk to show a watch-triggered reload happen live.
//
// This is the domain-agnostic stand-in for the original library's imgthumbs
// sample: same one-directory-argument, print-feedback shape, with GPU
// texture upload and image decoding (out of scope here) replaced by
// reading the file's bytes as the "load".
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jtsiomb/goresman/pkg/logging"
	"github.com/jtsiomb/goresman/pkg/resman"
)

func main() {
	dir := "."
	flag.Parse()
	if flag.NArg() > 0 {
		dir = flag.Arg(0)
	}

	logger := logging.New(logging.DefaultConfig())

	var m *resman.Manager
	m, err := resman.New(resman.Config{
		Logger: logger,
		Callbacks: resman.Callbacks{
			Load: func(path string, id int) int32 {
				data, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "load %q: %v\n", path, err)
					return -1
				}
				return int32(len(data))
			},
			Done: func(id int) int32 {
				fmt.Printf("loaded %q (%d bytes), load #%d\n",
					m.GetResName(id), m.GetResResult(id), m.GetResLoadCount(id)+1)
				return 0
			},
			Destroy: func(id int) {
				fmt.Printf("dropped %q\n", m.GetResName(id))
			},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "resmandemo: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resmandemo: %v\n", err)
		os.Exit(1)
	}

	// The original sample's create_thumbs enumerates "." and ".." along
	// with real entries; a faithful rewrite filters them and anything
	// that is not a regular file instead of attempting to load them.
	var ids []int
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		ids = append(ids, m.Add(path, nil))
	}

	if len(ids) == 0 {
		fmt.Println("no regular files found, nothing to load")
		return
	}

	m.WaitAll()
	for range ids {
		m.Poll()
	}

	// Touch the first file to demonstrate a watch-triggered reload.
	if first := m.GetResName(ids[0]); first != "" {
		if data, err := os.ReadFile(first); err == nil {
			_ = os.WriteFile(first, append(data, '\n'), 0o644)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.Poll()
		time.Sleep(20 * time.Millisecond)
	}
}
