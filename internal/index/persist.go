package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/pkg/types"
)

// Persistence layout: two files under the data directory, both written
// with the atomic tmp+fsync+rename pattern. The file bodies carry no
// timestamps, so back-to-back saves of identical state are byte-identical.
const (
	indexFileName = "vector_index.bin"
	metaFileName  = "vector_index_meta.bin"
	lockFileName  = "index.lock"

	formatVersion = uint16(1)
)

var (
	metaMagic   = [4]byte{'X', 'S', 'I', 'M'}
	vectorMagic = [4]byte{'X', 'V', 'E', 'C'}
)

// Save persists the index. A file lock on the data directory keeps
// concurrent processes from interleaving writes.
func (ix *Index) Save() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := os.MkdirAll(ix.cfg.DataDir, 0o755); err != nil {
		return engerr.Wrap(engerr.ErrCodeIndexWrite, err)
	}

	lock := flock.New(filepath.Join(ix.cfg.DataDir, lockFileName))
	if err := lock.Lock(); err != nil {
		return engerr.Wrap(engerr.ErrCodeIndexWrite, err)
	}
	defer func() { _ = lock.Unlock() }()

	ids := ix.sortedIDsLocked()

	if err := writeAtomic(filepath.Join(ix.cfg.DataDir, indexFileName), func(w io.Writer) error {
		return ix.writeVectorsLocked(w, ids)
	}); err != nil {
		return engerr.Wrap(engerr.ErrCodeIndexWrite, err)
	}

	if err := writeAtomic(filepath.Join(ix.cfg.DataDir, metaFileName), func(w io.Writer) error {
		return ix.writeMetaLocked(w, ids)
	}); err != nil {
		return engerr.Wrap(engerr.ErrCodeIndexWrite, err)
	}

	ix.logger.Info("index saved",
		slog.Int("count", len(ids)),
		slog.String("strategy", string(ix.ann.strategy())))
	return nil
}

// Load reads the persisted index. A bad magic, version, or dimension
// reports corrupted=true via Stats and presents an empty index; it never
// crashes. Missing files mean a fresh start.
func (ix *Index) Load() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	lock := flock.New(filepath.Join(ix.cfg.DataDir, lockFileName))
	if err := lock.Lock(); err != nil {
		return engerr.Wrap(engerr.ErrCodeFileNotFound, err)
	}
	defer func() { _ = lock.Unlock() }()

	metaPath := filepath.Join(ix.cfg.DataDir, metaFileName)
	vecPath := filepath.Join(ix.cfg.DataDir, indexFileName)

	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return nil // fresh start
	}

	papers, strategy, nextID, err := readMeta(metaPath)
	if err != nil {
		ix.logger.Warn("index metadata unreadable, presenting empty index",
			slog.String("error", err.Error()))
		ix.markCorruptedLocked()
		return nil
	}

	vecs, dim, err := readVectors(vecPath)
	if err != nil {
		ix.logger.Warn("index vectors unreadable, presenting empty index",
			slog.String("error", err.Error()))
		ix.markCorruptedLocked()
		return nil
	}

	// A dimension mismatch is refused outright.
	if dim != ix.cfg.Dimension {
		ix.logger.Warn("index dimension mismatch, presenting empty index",
			slog.Int("file", dim), slog.Int("configured", ix.cfg.Dimension))
		ix.markCorruptedLocked()
		return nil
	}

	// Every metadata record needs its vector and vice versa.
	if len(papers) != len(vecs) {
		ix.logger.Warn("index metadata/vector count mismatch, presenting empty index",
			slog.Int("meta", len(papers)), slog.Int("vectors", len(vecs)))
		ix.markCorruptedLocked()
		return nil
	}
	for id := range papers {
		vec, ok := vecs[id]
		if !ok {
			ix.markCorruptedLocked()
			return nil
		}
		papers[id].Embedding = vec
	}

	ix.papers = papers
	ix.vecs = vecs
	ix.nextPaperID = nextID
	ix.corrupted = false

	// Rebuild the candidate structure for the persisted strategy. A tag
	// that no longer matches the count band serves reads as-is and is
	// rebuilt on the first write.
	ix.rebuildLocked(strategy)
	ix.readOnly = strategy != targetStrategy(len(papers))

	ix.logger.Info("index loaded",
		slog.Int("count", len(papers)),
		slog.String("strategy", string(strategy)),
		slog.Bool("read_only", ix.readOnly))
	return nil
}

// Backup copies both persistence files into backup_<UTCstamp>/ under the
// data directory and returns the backup directory path.
func (ix *Index) Backup() (string, error) {
	if err := ix.Save(); err != nil {
		return "", err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	stamp := time.Now().UTC().Format("20060102T150405Z")
	dir := filepath.Join(ix.cfg.DataDir, "backup_"+stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", engerr.Wrap(engerr.ErrCodeBackupFailed, err)
	}

	for _, name := range []string{indexFileName, metaFileName} {
		if err := copyFile(
			filepath.Join(ix.cfg.DataDir, name),
			filepath.Join(dir, name),
		); err != nil {
			return "", engerr.Wrap(engerr.ErrCodeBackupFailed, err)
		}
	}

	return dir, nil
}

func (ix *Index) markCorruptedLocked() {
	ix.papers = make(map[uint64]*types.Paper)
	ix.vecs = make(map[uint64][]float32)
	ix.ann = newFlatANN(ix.vecs)
	ix.corrupted = true
}

func (ix *Index) writeVectorsLocked(w io.Writer, ids []uint64) error {
	if _, err := w.Write(vectorMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(ix.cfg.Dimension)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(ids))); err != nil {
		return err
	}

	for _, id := range ids {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, ix.vecs[id]); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) writeMetaLocked(w io.Writer, ids []uint64) error {
	if _, err := w.Write(metaMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if _, err := w.Write([]byte{strategyByte(ix.ann.strategy())}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(ix.cfg.Dimension)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(ids))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, ix.nextPaperID); err != nil {
		return err
	}

	for _, id := range ids {
		p := ix.papers[id]
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		if _, err := w.Write(p.ContentHash[:]); err != nil {
			return err
		}
		for _, s := range []string{
			p.Title, p.Abstract, joinAuthors(p.Authors),
			p.Source, p.DocumentType, p.PublicationDate, p.DOI, p.URL,
		} {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func readMeta(path string) (map[uint64]*types.Paper, Strategy, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, StrategyFlat, 0, err
	}
	defer func() { _ = f.Close() }()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, StrategyFlat, 0, fmt.Errorf("read magic: %w", err)
	}
	if magic != metaMagic {
		return nil, StrategyFlat, 0, fmt.Errorf("bad magic %q", magic)
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, StrategyFlat, 0, err
	}
	if version != formatVersion {
		return nil, StrategyFlat, 0, fmt.Errorf("unsupported version %d", version)
	}

	var strategyTag byte
	if err := binary.Read(r, binary.LittleEndian, &strategyTag); err != nil {
		return nil, StrategyFlat, 0, err
	}
	strategy, ok := strategyFromByte(strategyTag)
	if !ok {
		return nil, StrategyFlat, 0, fmt.Errorf("unknown strategy tag %d", strategyTag)
	}

	var dim uint16
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, StrategyFlat, 0, err
	}

	var count, nextID uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, StrategyFlat, 0, err
	}
	if err := binary.Read(r, binary.LittleEndian, &nextID); err != nil {
		return nil, StrategyFlat, 0, err
	}

	papers := make(map[uint64]*types.Paper, count)
	for i := uint64(0); i < count; i++ {
		var id uint64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, StrategyFlat, 0, fmt.Errorf("record %d: %w", i, err)
		}

		p := &types.Paper{PaperID: id}
		if _, err := io.ReadFull(r, p.ContentHash[:]); err != nil {
			return nil, StrategyFlat, 0, fmt.Errorf("record %d hash: %w", i, err)
		}

		fields := make([]string, 8)
		for j := range fields {
			s, err := readString(r)
			if err != nil {
				return nil, StrategyFlat, 0, fmt.Errorf("record %d field %d: %w", i, j, err)
			}
			fields[j] = s
		}
		p.Title = fields[0]
		p.Abstract = fields[1]
		p.Authors = splitAuthors(fields[2])
		p.Source = fields[3]
		p.DocumentType = fields[4]
		p.PublicationDate = fields[5]
		p.DOI = fields[6]
		p.URL = fields[7]

		papers[id] = p
	}

	return papers, strategy, nextID, nil
}

func readVectors(path string) (map[uint64][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, 0, fmt.Errorf("read magic: %w", err)
	}
	if magic != vectorMagic {
		return nil, 0, fmt.Errorf("bad magic %q", magic)
	}

	var version, dim uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, 0, err
	}
	if version != formatVersion {
		return nil, 0, fmt.Errorf("unsupported version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, 0, err
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, 0, err
	}

	vecs := make(map[uint64][]float32, count)
	for i := uint64(0); i < count; i++ {
		var id uint64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, 0, fmt.Errorf("vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, 0, fmt.Errorf("vector %d data: %w", i, err)
		}
		vecs[id] = vec
	}

	return vecs, int(dim), nil
}

// writeAtomic writes through a temp file, fsyncs, and renames over the
// final path.
func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > 16*1024*1024 {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
