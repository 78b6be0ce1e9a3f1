// Package vector persists per-session chunk metadata and embedding matrices.
//
// Each session owns one directory under the store's index dir containing two
// artifacts written as a unit: chunks.json (the ordered chunk metadata) and
// vectors.bin (the embedding matrix: uint32 dimensions, uint32 row count, then
// little-endian float32 rows in chunk order). An index is replaced wholesale
// on re-index and is never partially updated.
package vector

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/codelens/codelens/internal/models"
)

// ErrIndexNotFound indicates no index exists for the session; the caller must
// index the codebase (again) before searching.
var ErrIndexNotFound = errors.New("vector: index not found for session")

const (
	chunksFile  = "chunks.json"
	vectorsFile = "vectors.bin"
)

// Store owns the on-disk index artifacts, one directory per session.
type Store struct {
	indexDir string
}

// NewStore creates a store rooted at indexDir, creating it if needed.
func NewStore(indexDir string) (*Store, error) {
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &Store{indexDir: indexDir}, nil
}

// HasIndex reports whether a persisted index exists for the session. It only
// stats the artifact, never loads it.
func (s *Store) HasIndex(sessionID string) bool {
	_, err := os.Stat(filepath.Join(s.indexDir, sessionID, vectorsFile))
	return err == nil
}

// Save atomically replaces the session's index with the given chunks and
// matrix. The two are parallel sequences; Save refuses mismatched input.
// Artifacts are written to temporary files and renamed into place, with the
// vector file renamed last so HasIndex never observes a half-written index.
func (s *Store) Save(sessionID string, chunks []models.Chunk, matrix [][]float32) error {
	if len(chunks) != len(matrix) {
		return fmt.Errorf("chunk/matrix length mismatch: %d chunks, %d rows", len(chunks), len(matrix))
	}
	if len(chunks) == 0 {
		return fmt.Errorf("refusing to save empty index for session %s", sessionID)
	}

	dir := filepath.Join(s.indexDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session index dir: %w", err)
	}

	chunksPath := filepath.Join(dir, chunksFile)
	vectorsPath := filepath.Join(dir, vectorsFile)

	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := os.WriteFile(chunksPath+".tmp", data, 0644); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	if err := writeMatrix(vectorsPath+".tmp", matrix); err != nil {
		_ = os.Remove(chunksPath + ".tmp")
		return err
	}

	if err := os.Rename(chunksPath+".tmp", chunksPath); err != nil {
		_ = os.Remove(vectorsPath + ".tmp")
		return fmt.Errorf("replace chunks: %w", err)
	}
	if err := os.Rename(vectorsPath+".tmp", vectorsPath); err != nil {
		return fmt.Errorf("replace vectors: %w", err)
	}
	return nil
}

// Load reads the session's chunks and embedding matrix. Returns
// ErrIndexNotFound when no index exists.
func (s *Store) Load(sessionID string) ([]models.Chunk, [][]float32, error) {
	dir := filepath.Join(s.indexDir, sessionID)

	data, err := os.ReadFile(filepath.Join(dir, chunksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrIndexNotFound
		}
		return nil, nil, fmt.Errorf("read chunks: %w", err)
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, nil, fmt.Errorf("parse chunks: %w", err)
	}

	matrix, err := readMatrix(filepath.Join(dir, vectorsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrIndexNotFound
		}
		return nil, nil, err
	}
	if len(matrix) != len(chunks) {
		return nil, nil, fmt.Errorf("corrupt index for session %s: %d chunks, %d vector rows",
			sessionID, len(chunks), len(matrix))
	}
	return chunks, matrix, nil
}

// Delete removes the session's index artifacts, if any.
func (s *Store) Delete(sessionID string) error {
	return os.RemoveAll(filepath.Join(s.indexDir, sessionID))
}

// DiskUsageBytes returns the total size of all persisted index artifacts.
func (s *Store) DiskUsageBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.indexDir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}

func writeMatrix(path string, matrix [][]float32) error {
	dims := len(matrix[0])
	for i, row := range matrix {
		if len(row) != dims {
			return fmt.Errorf("ragged matrix: row %d has %d values, expected %d", i, len(row), dims)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(dims)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(matrix))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, row := range matrix {
		if _, err := f.Write(float32SliceToBytes(row)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	return f.Sync()
}

func readMatrix(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var dims, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}

	matrix := make([][]float32, 0, n)
	buf := make([]byte, dims*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read row %d: %w", i, err)
		}
		matrix = append(matrix, bytesToFloat32Slice(buf))
	}
	return matrix, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
