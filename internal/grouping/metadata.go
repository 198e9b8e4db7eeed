package grouping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadMetadataColumn reads a QIIME-style sample metadata TSV and returns the
// mapping from the first column to column. The first row that is not a
// "#q2:" directive is the header, so "#SampleID" style headers work. Later
// rows starting with "#" are skipped, as are rows with an empty label.
func ReadMetadataColumn(path, column string) (LabelMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMetadata(f, column)
}

// ReadMetadata is ReadMetadataColumn over a reader.
func ReadMetadata(r io.Reader, column string) (LabelMapping, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header []string
	col := -1
	var mapping LabelMapping
	seen := map[string]bool{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 || strings.HasPrefix(record[0], "#q2:") {
			continue
		}
		if header == nil {
			header = record
			for i, name := range header {
				if i > 0 && strings.TrimSpace(name) == column {
					col = i
				}
			}
			if col < 0 {
				return nil, fmt.Errorf("metadata column %q not found", column)
			}
			continue
		}
		if strings.HasPrefix(record[0], "#") {
			continue
		}
		id := strings.TrimSpace(record[0])
		if id == "" {
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate sample id %q in metadata", id)
		}
		seen[id] = true
		if col >= len(record) {
			continue
		}
		label := strings.TrimSpace(record[col])
		if label == "" {
			continue
		}
		mapping = append(mapping, Entry{Sample: id, Label: label})
	}
	if header == nil {
		return nil, errors.New("metadata file has no header row")
	}
	return mapping, nil
}
