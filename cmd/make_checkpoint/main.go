package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Writes a toy checkpoint directory (model.safetensors, vocab.json,
// config.json) that `ilmc convert` accepts as-is.
func main() {
	dir := flag.String("dir", "toy", "output directory")
	rows := flag.Int("rows", 8, "rows")
	cols := flag.Int("cols", 16, "cols")
	flag.Parse()
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		println("make_checkpoint: mkdir error:", err.Error())
		os.Exit(1)
	}
	if err := writeSafetensors(filepath.Join(*dir, "model.safetensors"), *rows, *cols); err != nil {
		println("make_checkpoint: safetensors error:", err.Error())
		os.Exit(1)
	}
	if err := writeSidecars(*dir, *rows, *cols); err != nil {
		println("make_checkpoint: sidecars error:", err.Error())
		os.Exit(1)
	}
	fmt.Println("wrote fixture:", *dir)
}

func writeSafetensors(path string, rows, cols int) error {
	n := rows * cols
	data := make([]float32, n)
	for i := 0; i < n; i++ {
		data[i] = float32(math.Sin(float64(i))*0.1 + 0.01*float64(i%7))
	}
	size := n * 4
	header := map[string]any{
		"toy.weight": map[string]any{
			"dtype":        "F32",
			"shape":        []int{rows, cols},
			"data_offsets": []int{0, size},
		},
	}
	hb, err := json.Marshal(header)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	var b8 [8]byte
	binary.LittleEndian.PutUint64(b8[:], uint64(len(hb)))
	if _, err := bw.Write(b8[:]); err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := binary.Write(bw, binary.LittleEndian, data[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeSidecars(dir string, rows, cols int) error {
	vocab := []map[string]string{
		{"piece": "<unk>", "type": "unknown"},
		{"piece": "<s>", "type": "control"},
		{"piece": "</s>", "type": "control"},
		{"piece": "<0x0A>", "type": "byte"},
		{"piece": "▁hello", "type": "normal"},
		{"piece": "▁world", "type": "normal"},
	}
	vb, err := json.MarshalIndent(vocab, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "vocab.json"), vb, 0o644); err != nil {
		return err
	}
	cfg := map[string]any{
		"hidden_size":         cols,
		"num_attention_heads": 2,
		"num_hidden_layers":   1,
		"intermediate_size":   rows,
		"vocab_size":          len(vocab),
	}
	cb, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), cb, 0o644)
}
