package moderation

import (
	"bufio"
	"bytes"
	"io/fs"
	"path"
	"strings"

	"github.com/samber/lo"
)

// ParseWords splits a comma separated list, as found in CENSORED_WORDS.
func ParseWords(list string) []string {
	words := lo.Map(strings.Split(list, ","), func(w string, _ int) string {
		return strings.TrimSpace(w)
	})
	return lo.Uniq(lo.Compact(words))
}

// LoadWords reads every .txt file of dir, one word per line.
// Each file is usually one language, e.g. "fr.txt".
func LoadWords(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var words []string
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		// Scanner copes with \r\n files
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				words = append(words, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return lo.Uniq(words), nil
}
