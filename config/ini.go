package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// parseINI scans an INI-style dftbaby.cfg into section -> key -> raw
// string value. Section and key names are lowercased to match the
// option store; values keep their case. Comments start with # or ;
// and may trail a value. Keys before the first section header are a
// configuration error.
func parseINI(filename string) (map[string]map[string]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sections := make(map[string]map[string]string)
	var current string
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf(
					"%w: %s:%d: unterminated section header %q",
					ErrConfig, filename, lineno, line)
			}
			current = strings.ToLower(
				strings.TrimSpace(line[1 : len(line)-1]))
			if current == "" {
				return nil, fmt.Errorf(
					"%w: %s:%d: empty section name",
					ErrConfig, filename, lineno)
			}
			if sections[current] == nil {
				sections[current] = make(map[string]string)
			}
			continue
		}
		split := strings.SplitN(line, "=", 2)
		if len(split) != 2 {
			return nil, fmt.Errorf("%w: %s:%d: expected key = value, got %q",
				ErrConfig, filename, lineno, line)
		}
		if current == "" {
			return nil, fmt.Errorf("%w: %s:%d: key %q outside any section",
				ErrConfig, filename, lineno, split[0])
		}
		key := strings.ToLower(strings.TrimSpace(split[0]))
		sections[current][key] = strings.TrimSpace(split[1])
	}
	return sections, scanner.Err()
}
