package ledger

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// WriteSnapshot writes records to w as a zstd-compressed parquet file.
func WriteSnapshot(w io.Writer, records []Record) error {
	pw := parquet.NewGenericWriter[Record](w, parquet.Compression(&parquet.Zstd))

	if _, err := pw.Write(records); err != nil {
		pw.Close()
		return fmt.Errorf("write snapshot rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close snapshot writer: %w", err)
	}
	return nil
}
