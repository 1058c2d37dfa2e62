package session

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/vibecli/vibe-core/internal/config"
)

// CacheDir returns $HOME/.local/share/vibe_cli, creating it if absent.
// Returns an error only if the directory cannot be created; callers
// should treat that as "caching unavailable", not a fatal condition.
func CacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "share", "vibe_cli")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// CachePath returns the per-project, per-kind cache file path:
// <CacheDir>/<project-hash>_<kind>.
func CachePath(projectRoot, kind string) (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s", config.ProjectHash(projectRoot), kind)), nil
}

// WriteRecords writes records as a length-prefixed binary stream: each
// record is a uint32 big-endian length followed by that many raw bytes.
// Writes to a temp file and renames into place so a crash mid-write never
// corrupts the previous cache generation.
func WriteRecords(path string, records [][]byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	var lenBuf [4]byte
	for _, rec := range records {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(rec)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		if _, err := w.Write(rec); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadRecords reads back a file written by WriteRecords. Per the
// hints-only contract it never returns an error a caller might propagate
// into a build failure: a missing file yields nil, and a truncated/corrupt
// file is logged and yields the records read before the damage.
func ReadRecords(path string) [][]byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var records [][]byte
	r := bufio.NewReader(f)
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err != io.EOF {
				log.Printf("[session] cache %s truncated reading length prefix: %v", path, err)
			}
			break
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			log.Printf("[session] cache %s truncated reading record: %v", path, err)
			break
		}
		records = append(records, buf)
	}
	return records
}
