package erchmm

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
)

// Dataset is an observed inter-arrival sequence, optionally together with
// the parameters and branch sequence that generated it.
type Dataset struct {

	// The observed inter-arrival times
	Obs []float64

	// The true branch of each observation (if known)
	Branch []int

	// The generating parameters (if known)
	Order []int
	Init  []float64
	Rate  []float64
	Trans []float64
}

// WriteDataset writes ds to a gzip-compressed gob file.
func WriteDataset(fname string, ds *Dataset) (err error) {

	fid, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fid.Close(); err == nil {
			err = cerr
		}
	}()

	gid := gzip.NewWriter(fid)
	if err := gob.NewEncoder(gid).Encode(ds); err != nil {
		_ = gid.Close()
		return fmt.Errorf("encoding %s: %w", fname, err)
	}

	return gid.Close()
}

// ReadDataset reads a Dataset from a gzip-compressed gob file.
func ReadDataset(fname string) (*Dataset, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	gid, err := gzip.NewReader(fid)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fname, err)
	}
	defer gid.Close()

	var ds Dataset
	if err := gob.NewDecoder(gid).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", fname, err)
	}

	return &ds, nil
}
