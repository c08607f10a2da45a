package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// columnOrderKey is the parquet key-value metadata entry holding the
// column order of the table; parquet groups sort their fields by name.
const columnOrderKey = "brhist.columns"

const readBatch = 512

// Options configures a Store.
type Options struct {
	Compression string // zstd, gzip, snappy or none
	Snapshot    bool   // write <name>.csv.gz next to every parquet file
	Logger      *slog.Logger
}

// Store reads and writes dataset tables.
type Store struct {
	codec    compress.Codec
	snapshot bool
	logger   *slog.Logger
}

// New creates a Store.
func New(opts Options) (*Store, error) {
	codec, err := codecFor(opts.Compression)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{codec: codec, snapshot: opts.Snapshot, logger: logger}, nil
}

func codecFor(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return &parquet.Zstd, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "none":
		return &parquet.Uncompressed, nil
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}

// Load reads the table stored at path. A missing file yields an empty table
// and exists == false.
func (s *Store) Load(path string) (df dataframe.DataFrame, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dataframe.DataFrame{}, false, nil
		}
		return dataframe.DataFrame{}, false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return dataframe.DataFrame{}, true, fmt.Errorf("stat %s: %w", path, err)
	}

	df, err = decode(f, info.Size())
	if err != nil {
		return dataframe.DataFrame{}, true, fmt.Errorf("read %s: %w", path, err)
	}
	return df, true, nil
}

// Save atomically replaces the table stored at path. Columns named in
// dateColumns must hold YYYY-MM-DD strings.
func (s *Store) Save(path string, df dataframe.DataFrame, dateColumns []string) error {
	if df.Err != nil {
		return fmt.Errorf("save %s: %w", path, df.Err)
	}
	if df.Ncol() == 0 {
		return fmt.Errorf("save %s: table has no columns", path)
	}

	start := time.Now()
	err := writeAtomic(path, func(w io.Writer) error {
		return encode(w, df, dateColumns, s.codec)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	s.logger.Debug("table saved",
		"path", path,
		"rows", df.Nrow(),
		"columns", df.Ncol(),
		"duration", time.Since(start),
	)

	if s.snapshot {
		snap := SnapshotPath(path)
		if err := writeAtomic(snap, func(w io.Writer) error { return writeSnapshot(w, df) }); err != nil {
			return fmt.Errorf("save snapshot %s: %w", snap, err)
		}
	}
	return nil
}

// SnapshotPath returns the gzip CSV path paired with a parquet path.
func SnapshotPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".csv.gz"
}

// writeAtomic writes through a temporary file in the same directory and
// renames it over path once fully synced.
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func writeSnapshot(w io.Writer, df dataframe.DataFrame) error {
	zw := gzip.NewWriter(w)
	if err := df.WriteCSV(zw); err != nil {
		zw.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return zw.Close()
}

// ReadSnapshot reads a gzip CSV snapshot back into a table. All columns are
// loaded as strings.
func ReadSnapshot(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	df := dataframe.ReadCSV(zr, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read snapshot csv: %w", df.Err)
	}
	return df, nil
}

func encodeColumnOrder(names []string) string {
	b, _ := json.Marshal(names)
	return string(b)
}

func decodeColumnOrder(s string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, err
	}
	return names, nil
}
