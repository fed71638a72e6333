// Package jsonl reads and appends newline-delimited JSON files.
//
// Every record is written as one line with a single write call on a file
// opened in append mode, so a crash can truncate at most the line in flight.
// The next append starts on a fresh line, leaving only the torn fragment
// unreadable.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dtnitsch/sutta-concepts/models"
)

// ScanOptions configures Scan.
type ScanOptions struct {
	// OnCorrupt is called for every line that is not a JSON object. The line
	// is skipped either way.
	OnCorrupt func(lineNo int, err error)
}

// Scan calls fn for every JSON object in the file at path, in file order.
// Blank lines are ignored. A missing file returns an error wrapping
// os.ErrNotExist. Returning an error from fn stops the scan.
func Scan(path string, opts ScanOptions, fn func(lineNo int, item models.Item) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	lineNo := 0
	for {
		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				item, decodeErr := decodeLine(line)
				if decodeErr != nil {
					if opts.OnCorrupt != nil {
						opts.OnCorrupt(lineNo, decodeErr)
					}
				} else if err := fn(lineNo, item); err != nil {
					return err
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", path, readErr)
		}
	}
}

func decodeLine(line []byte) (models.Item, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var item models.Item
	if err := dec.Decode(&item); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New("line is not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return item, nil
}

// ReadAll returns every valid object in the file.
func ReadAll(path string, opts ScanOptions) ([]models.Item, error) {
	var items []models.Item
	err := Scan(path, opts, func(_ int, item models.Item) error {
		items = append(items, item)
		return nil
	})
	return items, err
}

// Append writes v as a single line at the end of the file at path,
// creating the file and its parent directory when needed.
func Append(path string, v any) error {
	return AppendAll(path, []any{v})
}

// AppendAll appends every value as its own line. The file is opened once.
func AppendAll(path string, values []any) error {
	if len(values) == 0 {
		return nil
	}
	lines := make([][]byte, 0, len(values))
	for _, v := range values {
		line, err := marshalLine(v)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}

	f, err := openAppend(path)
	if err != nil {
		return err
	}
	if err := terminateLastLine(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to repair %s: %w", path, err)
	}
	for _, line := range lines {
		if _, err := f.Write(line); err != nil {
			_ = f.Close() // Write error more important than close error
			return fmt.Errorf("failed to append to %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// Writer keeps a file open for a sequence of truncating writes, used when a
// stage regenerates its whole store (the scraper).
type Writer struct {
	f    *os.File
	path string
}

// Create truncates (or creates) the file at path.
func Create(path string) (*Writer, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &Writer{f: f, path: path}, nil
}

// Write appends one line.
func (w *Writer) Write(v any) error {
	line, err := marshalLine(v)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("failed to write to %s: %w", w.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// WriteJSON replaces the file at path with indented JSON.
func WriteJSON(path string, v any) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func marshalLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode terminates the value with '\n'.
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return buf.Bytes(), nil
}

func openAppend(path string) (*os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	return f, nil
}

// terminateLastLine writes a newline when the file does not end with one,
// so a line torn by a crash stays separate from the next record.
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
