package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ilmfmt/ilmc/internal/convert"
)

func cmdConvert() {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	model := fs.String("model", "", "path to .safetensors (optionally .zst/.lz4)")
	out := fs.String("out", "", "output .ilm")
	vocab := fs.String("vocab", "", "piece table JSON (default: vocab.json next to the model)")
	config := fs.String("config", "", "HF config.json (default: next to the model)")
	fs.Parse(os.Args[2:])
	if *model == "" || *out == "" {
		fmt.Println("usage: ilmc convert --model x.safetensors --out y.ilm")
		os.Exit(1)
	}
	opts := convert.Options{Model: *model, Vocab: *vocab, Config: *config, Out: *out}
	if err := convert.Run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "convert: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Converted:", *out)
}
