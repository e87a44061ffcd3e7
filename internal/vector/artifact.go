package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	manifestName = "index_manifest.json"
	pointerName  = "CURRENT"
)

// Write writes the index artifacts (manifest, items jsonl, raw vectors)
// to dir.
func Write(dir string, idx *Index) error {
	m := idx.Manifest
	if m.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d", m.Dim)
	}
	if len(idx.Vectors) != len(idx.Entries)*m.Dim {
		return fmt.Errorf("vector length mismatch: got %d want %d", len(idx.Vectors), len(idx.Entries)*m.Dim)
	}
	if m.VectorFile == "" {
		m.VectorFile = "vectors.f32"
	}
	if m.ItemsFile == "" {
		m.ItemsFile = "items.jsonl"
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create index dir %s: %w", dir, err)
	}

	mb, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), mb, 0o644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, m.ItemsFile))
	if err != nil {
		return fmt.Errorf("cannot create items file: %w", err)
	}
	bw := bufio.NewWriter(f)
	for _, e := range idx.Entries {
		line, err := json.Marshal(e)
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := bw.Write(line); err != nil {
			_ = f.Close()
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	vf, err := os.Create(filepath.Join(dir, m.VectorFile))
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	if err := binary.Write(vf, binary.LittleEndian, idx.Vectors); err != nil {
		_ = vf.Close()
		return fmt.Errorf("cannot write vectors: %w", err)
	}
	return vf.Close()
}

// Load reads an index from dir containing manifest + items + vectors.
func Load(dir string) (*Index, error) {
	manifestPath := filepath.Join(dir, manifestName)
	b, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", manifestPath, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON %s: %w", manifestPath, err)
	}
	if m.Dim <= 0 {
		return nil, fmt.Errorf("invalid dim in manifest: %d", m.Dim)
	}
	if m.VectorFile == "" {
		m.VectorFile = "vectors.f32"
	}
	if m.ItemsFile == "" {
		m.ItemsFile = "items.jsonl"
	}

	entries, err := loadEntries(filepath.Join(dir, m.ItemsFile))
	if err != nil {
		return nil, err
	}
	vectors, err := loadVectors(filepath.Join(dir, m.VectorFile), len(entries), m.Dim)
	if err != nil {
		return nil, err
	}

	return &Index{Manifest: m, Entries: entries, Vectors: vectors}, nil
}

// WriteGeneration writes the index under root/gen-N and then activates it.
// A crash between the two steps leaves the previous generation active.
func WriteGeneration(root string, idx *Index) error {
	if err := Write(GenerationDir(root, idx.Manifest.Generation), idx); err != nil {
		return err
	}
	return Activate(root, idx.Manifest.Generation)
}

// Activate atomically repoints the CURRENT pointer file at the given
// generation's artifact directory.
func Activate(root string, gen int64) error {
	dir := GenerationDir(root, gen)
	tmp := filepath.Join(root, pointerName+".tmp")
	if err := os.WriteFile(tmp, []byte(filepath.Base(dir)+"\n"), 0o644); err != nil {
		return fmt.Errorf("cannot write pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(root, pointerName)); err != nil {
		return fmt.Errorf("cannot activate %s: %w", dir, err)
	}
	return nil
}

// LoadCurrent loads the index the CURRENT pointer designates.
func LoadCurrent(root string) (*Index, error) {
	b, err := os.ReadFile(filepath.Join(root, pointerName))
	if err != nil {
		return nil, fmt.Errorf("cannot read index pointer: %w", err)
	}
	name := strings.TrimSpace(string(b))
	if name == "" || strings.Contains(name, string(os.PathSeparator)) {
		return nil, fmt.Errorf("invalid index pointer %q", name)
	}
	return Load(filepath.Join(root, name))
}

// PruneGenerations removes artifact directories older than the one the
// CURRENT pointer designates.
func PruneGenerations(root string, keep int64) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var gen int64
		if _, err := fmt.Sscanf(e.Name(), "gen-%d", &gen); err != nil {
			continue
		}
		if gen < keep {
			if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
				return fmt.Errorf("prune %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

// GenerationDir returns the artifact directory for a generation.
func GenerationDir(root string, gen int64) string {
	return filepath.Join(root, fmt.Sprintf("gen-%d", gen))
}

func loadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open items file %s: %w", path, err)
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("invalid items JSONL %s: %w", path, err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read items file %s: %w", path, err)
	}
	return out, nil
}

func loadVectors(path string, nItems, dim int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat vector file %s: %w", path, err)
	}
	expected := int64(nItems * dim * 4)
	if expected != st.Size() {
		return nil, fmt.Errorf("vector file size mismatch: got %d want %d (items=%d dim=%d)", st.Size(), expected, nItems, dim)
	}

	out := make([]float32, nItems*dim)
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("cannot read vectors from %s: %w", path, err)
	}
	return out, nil
}
