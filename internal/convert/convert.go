// Package convert drives one checkpoint through the container writer:
// weights from a safetensors file, vocabulary from a piece table,
// hyperparameters from an HF-style config.json.
package convert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilmfmt/ilmc/internal/ilm"
	"github.com/ilmfmt/ilmc/internal/logger"
	"github.com/ilmfmt/ilmc/internal/safetensors"
	"github.com/ilmfmt/ilmc/internal/tokenizer"
)

// Options configures one conversion. Vocab and Config default to
// vocab.json and config.json next to the model.
type Options struct {
	Model  string // .safetensors, optionally .zst or .lz4
	Vocab  string
	Config string
	Out    string
}

// hfConfig is the subset of an HF config.json the param block needs.
type hfConfig struct {
	HiddenSize       uint32 `json:"hidden_size"`
	NumHeads         uint32 `json:"num_attention_heads"`
	NumLayers        uint32 `json:"num_hidden_layers"`
	IntermediateSize uint32 `json:"intermediate_size"`
	VocabSize        uint32 `json:"vocab_size"`
}

// Run performs the conversion. Any failure aborts; the output file, if
// created, is unusable and the caller should discard it.
func Run(opts Options) error {
	dir := filepath.Dir(opts.Model)
	if opts.Vocab == "" {
		opts.Vocab = filepath.Join(dir, "vocab.json")
	}
	if opts.Config == "" {
		opts.Config = filepath.Join(dir, "config.json")
	}

	cfgBytes, err := os.ReadFile(opts.Config)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var cfg hfConfig
	if err := json.Unmarshal(cfgBytes, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", opts.Config, err)
	}

	vocab, err := tokenizer.Load(opts.Vocab)
	if err != nil {
		return fmt.Errorf("load vocab: %w", err)
	}
	if cfg.VocabSize != 0 && int(cfg.VocabSize) != vocab.Size() {
		return fmt.Errorf("%w: config vocab_size %d but piece table has %d entries",
			ilm.ErrPrecondition, cfg.VocabSize, vocab.Size())
	}

	st, err := safetensors.Open(opts.Model)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}

	params := ilm.Params{
		Embd:     cfg.HiddenSize,
		Heads:    cfg.NumHeads,
		Layers:   cfg.NumLayers,
		FFHidden: cfg.IntermediateSize,
		Vocab:    uint32(vocab.Size()),
	}
	logger.Log.Info("converting checkpoint",
		"model", opts.Model, "tensors", len(st.Tensors),
		"embd", params.Embd, "heads", params.Heads, "layers", params.Layers,
		"fc_hidden", params.FFHidden, "vocab", params.Vocab)

	out, err := os.Create(opts.Out)
	if err != nil {
		return err
	}
	defer out.Close()

	w, err := ilm.NewWriter(out)
	if err != nil {
		return err
	}
	if err := w.Begin(params, vocab); err != nil {
		return err
	}
	for _, name := range st.Names() {
		t := st.Tensors[name]
		dtype, data, err := mapDtype(t.Meta.Dtype, t.Data)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		shape := make([]int, len(t.Meta.Shape))
		for i, d := range t.Meta.Shape {
			shape[i] = int(d)
		}
		if err := w.WriteTensor(name, shape, dtype, data); err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	logger.Log.Info("conversion done", "out", opts.Out, "tensors", w.Tensors())
	return nil
}
