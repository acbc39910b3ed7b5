package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilmfmt/ilmc/internal/ilm"
)

// Dump ILM -> raw per-tensor blobs (row-major, container byte order).
func cmdDump() {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	in := fs.String("in", "", "input .ilm")
	outDir := fs.String("out", "", "output dir (raw tensor blobs)")
	fs.Parse(os.Args[2:])
	if *in == "" || *outDir == "" {
		fmt.Println("usage: ilmc dump --in file.ilm --out dir")
		os.Exit(1)
	}
	f, err := ilm.OpenFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dump: open error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "dump: mkdir error: %v\n", err)
		os.Exit(1)
	}
	it, err := f.Tensors()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dump: %v\n", err)
		os.Exit(1)
	}
	for {
		t, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "dump: %v\n", err)
			os.Exit(1)
		}
		name := strings.ReplaceAll(t.Name, "/", "_") + "." + t.Dtype.String()
		out := filepath.Join(*outDir, name)
		if err := os.WriteFile(out, t.Data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "dump: write %s error: %v\n", out, err)
			os.Exit(1)
		}
		fmt.Println("wrote", out)
	}
}
