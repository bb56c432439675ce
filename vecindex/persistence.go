package vecindex

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// On-disk layout mirrors the FAISS local-store convention of two artifacts in
// one directory: a flat binary vector file and a gob-encoded metadata file.
// Both must be present for the index to exist; both are replaced atomically
// on save via temp-then-rename.
const (
	vectorFile = "index.bin"
	metaFile   = "index.meta"

	magic   = uint32(0x4f524143) // "ORAC"
	version = uint32(1)
)

type metaRecord struct {
	Dimension int
	Texts     []string
	Sources   []string
}

// Exists reports whether both index artifacts are present in dir.
func Exists(dir string) bool {
	for _, name := range []string{vectorFile, metaFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Load reads a persisted index from dir. It returns ErrNotFound when either
// artifact is absent and an error wrapping ErrCorrupt when artifacts are
// present but unreadable or inconsistent with each other.
func Load(dir string) (*Index, error) {
	if !Exists(dir) {
		return nil, ErrNotFound
	}

	meta, err := loadMeta(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, err
	}

	vectors, err := loadVectors(filepath.Join(dir, vectorFile))
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(meta.Texts) || len(meta.Texts) != len(meta.Sources) {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata entries", ErrCorrupt, len(vectors), len(meta.Texts))
	}

	ix := &Index{dimension: meta.Dimension}
	for i := range vectors {
		if len(vectors[i]) != meta.Dimension {
			return nil, fmt.Errorf("%w: vector %d has width %d, metadata says %d", ErrCorrupt, i, len(vectors[i]), meta.Dimension)
		}
		ix.entries = append(ix.entries, Entry{
			Vector: vectors[i],
			Text:   meta.Texts[i],
			Source: meta.Sources[i],
		})
	}

	return ix, nil
}

// Save persists the index into dir, fully replacing any prior artifact set.
// Each artifact is written to a temp file in the same directory and renamed
// into place so a reader never observes a partial write.
func Save(ix *Index, dir string) error {
	if ix == nil || ix.Len() == 0 {
		return fmt.Errorf("refusing to save empty index")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	entries := ix.snapshot()

	meta := metaRecord{
		Dimension: ix.dimension,
		Texts:     make([]string, len(entries)),
		Sources:   make([]string, len(entries)),
	}
	for i := range entries {
		meta.Texts[i] = entries[i].Text
		meta.Sources[i] = entries[i].Source
	}

	if err := writeAtomic(filepath.Join(dir, metaFile), func(w *bufio.Writer) error {
		return gob.NewEncoder(w).Encode(meta)
	}); err != nil {
		return fmt.Errorf("write index metadata: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, vectorFile), func(w *bufio.Writer) error {
		return writeVectors(w, ix.dimension, entries)
	}); err != nil {
		return fmt.Errorf("write index vectors: %w", err)
	}

	return nil
}

// Quarantine moves unreadable artifacts aside so a fresh index can be built
// in their place without destroying the evidence.
func Quarantine(dir string) error {
	for _, name := range []string{vectorFile, metaFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Rename(path, path+".corrupt"); err != nil {
			return fmt.Errorf("quarantine %s: %w", name, err)
		}
	}
	return nil
}

// Remove deletes the persisted artifact set.
func Remove(dir string) error {
	for _, name := range []string{vectorFile, metaFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func loadMeta(path string) (metaRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return metaRecord{}, fmt.Errorf("%w: open metadata: %v", ErrCorrupt, err)
	}
	defer file.Close()

	var meta metaRecord
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&meta); err != nil {
		return metaRecord{}, fmt.Errorf("%w: decode metadata: %v", ErrCorrupt, err)
	}
	if meta.Dimension <= 0 {
		return metaRecord{}, fmt.Errorf("%w: metadata has dimension %d", ErrCorrupt, meta.Dimension)
	}
	return meta, nil
}

func loadVectors(path string) ([][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open vectors: %v", ErrCorrupt, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)

	var header [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: read vector header: %v", ErrCorrupt, err)
	}
	if header[0] != magic || header[1] != version {
		return nil, fmt.Errorf("%w: unrecognized vector file header", ErrCorrupt)
	}

	count := int(header[2])
	dimension := int(header[3])
	if count <= 0 || dimension <= 0 {
		return nil, fmt.Errorf("%w: vector header declares %d vectors of width %d", ErrCorrupt, count, dimension)
	}

	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		vec := make([]float32, dimension)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: read vector %d: %v", ErrCorrupt, i, err)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

func writeVectors(w *bufio.Writer, dimension int, entries []Entry) error {
	header := [4]uint32{magic, version, uint32(len(entries)), uint32(dimension)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	for i := range entries {
		if err := binary.Write(w, binary.LittleEndian, entries[i].Vector); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, write func(*bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
