package worker

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadAudioPaths reads a file listing one audio path per line. The file
// stem (name without extension) is the utterance id. Duplicate stems are an
// input consistency error.
func LoadAudioPaths(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio files list: %w", err)
	}
	defer f.Close()

	paths := make(map[string]string)

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		stem := strings.TrimSuffix(filepath.Base(line), filepath.Ext(line))
		if prev, seen := paths[stem]; seen {
			return nil, fmt.Errorf("%s line %d: utterance %q already has audio %s",
				path, lineNum, stem, prev)
		}
		paths[stem] = line
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audio files list: %w", err)
	}

	return paths, nil
}
