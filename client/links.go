package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadLinks reads one beatmap reference per line. Surrounding whitespace is
// trimmed, and blank lines and lines starting with # are skipped. The
// references are returned unparsed; see ParseReference.
func ReadLinks(r io.Reader) ([]string, error) {
	var links []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		links = append(links, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading links: %w", err)
	}

	return links, nil
}
