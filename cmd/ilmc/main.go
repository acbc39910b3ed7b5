package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ilmfmt/ilmc/internal/downloader"
	"github.com/ilmfmt/ilmc/internal/logger"
)

func main() {
	logger.Setup(os.Getenv("ILMC_LOG_LEVEL"))
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "init":
		cmdInit()
	case "list":
		cmdList()
	case "pull":
		cmdPull()
	case "convert":
		cmdConvert()
	case "inspect":
		cmdInspect()
	case "dump":
		cmdDump()
	case "verify":
		cmdVerify()
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("ilmc - ILM model container toolkit")
	fmt.Println("usage: ilmc <command> [args]")
	fmt.Println("  init                        initialize ~/.ilmc")
	fmt.Println("  list                        list models in ~/.ilmc/models")
	fmt.Println("  pull <url>                  download a checkpoint to ~/.ilmc/models")
	fmt.Println("  convert --model x.safetensors --out y.ilm [--vocab vocab.json] [--config config.json]")
	fmt.Println("  inspect [--stats] <file.ilm>          show header, params, vocabulary and tensors")
	fmt.Println("  dump --in file.ilm --out dir          write raw tensor payloads per tensor")
	fmt.Println("  verify --in file.ilm [--against other.ilm]  print or compare xxh3 block digests")
}

var (
	homeDir   = must(os.UserHomeDir())
	ilmcHome  = filepath.Join(homeDir, ".ilmc")
	modelsDir = filepath.Join(ilmcHome, "models")
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func cmdInit() {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Initialized:", ilmcHome)
}

func cmdList() {
	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch filepath.Ext(name) {
		case ".ilm", ".safetensors", ".zst", ".lz4":
			fmt.Println(name)
		}
	}
}

func cmdPull() {
	if len(os.Args) < 3 {
		fmt.Println("usage: ilmc pull <url>")
		os.Exit(1)
	}
	url := os.Args[2]
	out := filepath.Join(modelsDir, filepath.Base(url))
	if err := downloader.Download(url, out); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Downloaded:", out)
}
