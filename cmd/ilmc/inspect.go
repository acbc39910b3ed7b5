package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ilmfmt/ilmc/internal/ilm"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func cmdInspect() {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	stats := fs.Bool("stats", false, "per-tensor value statistics (float32 tensors)")
	fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("usage: ilmc inspect [--stats] <file.ilm>")
		os.Exit(1)
	}
	if err := inspectILM(fs.Arg(0), *stats); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func inspectILM(path string, stats bool) error {
	f, err := ilm.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	offs := f.Offsets()
	fmt.Printf("header: params@%d+%d vocab@%d+%d tensors@%d\n",
		offs.ParamOffset, offs.ParamLength, offs.VocabOffset, offs.VocabLength, offs.TensorOffset)

	p, err := f.Params()
	if err != nil {
		return err
	}
	fmt.Printf("params: embd=%d heads=%d layers=%d fc_hidden=%d vocab=%d\n",
		p.Embd, p.Heads, p.Layers, p.FFHidden, p.Vocab)

	entries, err := f.Vocabulary()
	if err != nil {
		return err
	}
	empty := 0
	for _, e := range entries {
		if e.Text == "" {
			empty++
		}
	}
	fmt.Printf("vocabulary: %d entries (%d empty)\n", len(entries), empty)

	it, err := f.Tensors()
	if err != nil {
		return err
	}
	var count, payload int
	for {
		t, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		line := fmt.Sprintf("  %-48s %-14v %-4s %10d bytes", t.Name, t.Shape, t.Dtype, len(t.Data))
		if stats && t.Dtype == ilm.Float32 && len(t.Data) >= 4 {
			vals := f32Values(t.Data)
			mean, std := stat.MeanStdDev(vals, nil)
			line += fmt.Sprintf("  mean=%.4g std=%.4g min=%.4g max=%.4g",
				mean, std, floats.Min(vals), floats.Max(vals))
		}
		fmt.Println(line)
		count++
		payload += len(t.Data)
	}
	fmt.Printf("tensors: %d (%d payload bytes)\n", count, payload)
	return nil
}

func f32Values(b []byte) []float64 {
	out := make([]float64, len(b)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return out
}
