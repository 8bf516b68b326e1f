package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"holechase.ai/internal/sim/enemy"
	"holechase.ai/internal/sim/world"
)

// ListFiles returns the <prefix>-*.jsonl.zst files in dir in write order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ScanFile calls fn for every line of a compressed JSONL file. Returning
// ErrStop from fn ends the scan without error.
func ScanFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return sc.Err()
}

// ErrStop ends a scan early.
var ErrStop = errors.New("stop scan")

// ReadTicks streams tick entries from every events file in dir.
func ReadTicks(dir string, fn func(world.TickLogEntry) error) error {
	files, err := ListFiles(dir, TickPrefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		stopped := false
		err := ScanFile(path, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			err := fn(e)
			if errors.Is(err, ErrStop) {
				stopped = true
			}
			return err
		})
		if err != nil || stopped {
			return err
		}
	}
	return nil
}

// ReadTransitions streams transition entries from every transitions file in dir.
func ReadTransitions(dir string, fn func(enemy.Transition) error) error {
	files, err := ListFiles(dir, TransitionPrefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		stopped := false
		err := ScanFile(path, func(line []byte) error {
			var tr enemy.Transition
			if err := json.Unmarshal(line, &tr); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			err := fn(tr)
			if errors.Is(err, ErrStop) {
				stopped = true
			}
			return err
		})
		if err != nil || stopped {
			return err
		}
	}
	return nil
}
