package model

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/trashdetect/perception/internal/perr"
)

const (
	checkpointFormat  = "trashdetect-multitask"
	checkpointVersion = 1
)

type checkpointFile struct {
	Format  string
	Version int
	Config  Config
	Params  map[string]paramBlob
}

type paramBlob struct {
	Rows, Cols int
	Data       []float64
}

// Save writes the model parameters and config to path as a gzip-compressed
// gob. The file is written beside path and renamed into place, so readers
// see either the old checkpoint or the complete new one.
func (m *Model) Save(path string) error {
	ck := checkpointFile{
		Format:  checkpointFormat,
		Version: checkpointVersion,
		Config:  m.cfg,
		Params:  make(map[string]paramBlob),
	}
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		data := make([]float64, r*c)
		copy(data, p.Value.RawMatrix().Data)
		ck.Params[p.Name] = paramBlob{Rows: r, Cols: c, Data: data}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	gz := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(gz).Encode(&ck); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	committed = true
	return nil
}

// Load reads the checkpoint at path into a fresh model. numTrashClasses is
// the count the caller expects: a checkpoint trained for a different count is
// an ErrConfig, and any parameter whose shape disagrees with the recorded
// config is an ErrDimension.
func Load(path string, numTrashClasses int) (*Model, error) {
	ck, err := readCheckpoint(path)
	if err != nil {
		return nil, err
	}
	if ck.Config.NumTrashClasses != numTrashClasses {
		return nil, &perr.Error{
			Kind: perr.ErrConfig,
			Path: path,
			Msg: fmt.Sprintf("checkpoint has %d trash classes, requested %d",
				ck.Config.NumTrashClasses, numTrashClasses),
		}
	}

	m, err := New(ck.Config)
	if err != nil {
		return nil, err
	}
	if err := m.setParams(ck.Params); err != nil {
		return nil, &perr.Error{Kind: perr.ErrDimension, Path: path, Err: err}
	}
	return m, nil
}

func readCheckpoint(path string) (*checkpointFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.DataErr(path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, perr.DataErr(path, fmt.Errorf("failed to create gzip reader: %w", err))
	}
	defer gz.Close()

	var ck checkpointFile
	if err := gob.NewDecoder(gz).Decode(&ck); err != nil {
		return nil, perr.DataErr(path, fmt.Errorf("failed to decode checkpoint: %w", err))
	}
	if ck.Format != checkpointFormat || ck.Version != checkpointVersion {
		return nil, perr.Dataf(path, "unsupported checkpoint %s v%d", ck.Format, ck.Version)
	}
	return &ck, nil
}

func (m *Model) setParams(blobs map[string]paramBlob) error {
	params := m.Params()
	if len(blobs) != len(params) {
		return fmt.Errorf("checkpoint has %d parameters, model has %d", len(blobs), len(params))
	}
	for _, p := range params {
		b, ok := blobs[p.Name]
		if !ok {
			return fmt.Errorf("parameter %s missing from checkpoint", p.Name)
		}
		r, c := p.Value.Dims()
		if b.Rows != r || b.Cols != c || len(b.Data) != r*c {
			return fmt.Errorf("parameter %s is %dx%d (%d values), model expects %dx%d",
				p.Name, b.Rows, b.Cols, len(b.Data), r, c)
		}
		p.Value.Copy(mat.NewDense(r, c, b.Data))
	}
	return nil
}
