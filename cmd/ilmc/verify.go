package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ilmfmt/ilmc/internal/ilm"

	xxh3 "github.com/zeebo/xxh3"
)

// verify computes an xxh3 digest per container block (param block, vocab
// block, then each tensor payload). Digests are never stored in the
// file; with --against they are compared across two containers.
func cmdVerify() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	in := fs.String("in", "", "input .ilm")
	against := fs.String("against", "", "second .ilm to compare digests with")
	fs.Parse(os.Args[2:])
	if *in == "" {
		fmt.Println("usage: ilmc verify --in model.ilm [--against other.ilm]")
		os.Exit(1)
	}
	have, err := blockDigests(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		os.Exit(1)
	}
	if *against == "" {
		for _, d := range have {
			fmt.Printf("%016x  %s\n", d.sum, d.name)
		}
		return
	}
	want, err := blockDigests(*against)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		os.Exit(1)
	}
	mismatches := compareDigests(have, want)
	for _, m := range mismatches {
		fmt.Println(m)
	}
	if len(mismatches) == 0 {
		fmt.Println("digest verify: OK")
	} else {
		fmt.Fprintln(os.Stderr, "digest verify: FAILED")
		os.Exit(3)
	}
}

type digest struct {
	name string
	sum  uint64
}

func blockDigests(path string) ([]digest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := ilm.Open(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	offs := f.Offsets()
	if int64(offs.ParamOffset)+int64(offs.ParamLength) > int64(len(data)) ||
		int64(offs.VocabOffset)+int64(offs.VocabLength) > int64(len(data)) {
		return nil, fmt.Errorf("%w: header offsets past end of file", ilm.ErrFormat)
	}
	out := []digest{
		{"params", xxh3.Hash(data[offs.ParamOffset : offs.ParamOffset+offs.ParamLength])},
		{"vocabulary", xxh3.Hash(data[offs.VocabOffset : offs.VocabOffset+offs.VocabLength])},
	}
	it, err := f.Tensors()
	if err != nil {
		return nil, err
	}
	for {
		t, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, digest{"tensor:" + t.Name, xxh3.Hash(t.Data)})
	}
	return out, nil
}

func compareDigests(have, want []digest) []string {
	var out []string
	byName := make(map[string]uint64, len(want))
	for _, d := range want {
		byName[d.name] = d.sum
	}
	seen := make(map[string]bool, len(have))
	for _, d := range have {
		seen[d.name] = true
		w, ok := byName[d.name]
		if !ok {
			out = append(out, fmt.Sprintf("only in first: %s", d.name))
			continue
		}
		if w != d.sum {
			out = append(out, fmt.Sprintf("mismatch: %s (%016x != %016x)", d.name, d.sum, w))
		}
	}
	for _, d := range want {
		if !seen[d.name] {
			out = append(out, fmt.Sprintf("only in second: %s", d.name))
		}
	}
	return out
}
