package predictor

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// #region format

// checkpointFile is the gob payload: raw weight data plus enough
// metadata to refuse a checkpoint from a different architecture.
type checkpointFile struct {
	Fingerprint string
	Iteration   int64
	Shapes      map[string][2]int
	Weights     map[string][]float64
}

// #endregion format

// #region save-load

// SaveCheckpoint writes the current weights and iteration counter.
// The write goes through a temp file and rename so a crash never leaves
// a truncated checkpoint behind.
func (p *ComparisonPredictor) SaveCheckpoint(path string) error {
	p.mu.Lock()
	ckpt := checkpointFile{
		Fingerprint: p.cfg.Net.Fingerprint(),
		Iteration:   p.iteration,
		Shapes:      map[string][2]int{},
		Weights:     map[string][]float64{},
	}
	for name, w := range p.trainNet.Params() {
		r, c := w.Dims()
		ckpt.Shapes[name] = [2]int{r, c}
		data := make([]float64, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				data[i*c+j] = w.At(i, j)
			}
		}
		ckpt.Weights[name] = data
	}
	p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ckpt-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	if err := gob.NewEncoder(tmp).Encode(ckpt); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores weights and the iteration counter, then
// publishes the restored weights as the serving snapshot. Architecture
// and shape mismatches fail with expected vs actual; nothing is applied
// partially.
func (p *ComparisonPredictor) LoadCheckpoint(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var ckpt checkpointFile
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	if got, want := ckpt.Fingerprint, p.cfg.Net.Fingerprint(); got != want {
		return fmt.Errorf("checkpoint architecture mismatch: expected %q, got %q", want, got)
	}

	params := make(map[string]*mat.Dense, len(ckpt.Weights))
	for name, data := range ckpt.Weights {
		shape, ok := ckpt.Shapes[name]
		if !ok {
			return fmt.Errorf("checkpoint parameter %q has no shape entry", name)
		}
		if shape[0]*shape[1] != len(data) {
			return fmt.Errorf("checkpoint parameter %q: shape %dx%d does not hold %d values", name, shape[0], shape[1], len(data))
		}
		params[name] = mat.NewDense(shape[0], shape[1], data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.trainNet.SetParams(params); err != nil {
		return fmt.Errorf("restore checkpoint weights: %w", err)
	}
	p.iteration = ckpt.Iteration
	p.snapshot.Store(p.trainNet.Clone())
	return nil
}

// #endregion save-load
