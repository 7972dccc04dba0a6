// ABOUTME: File helpers shared by the stores: atomic writes and YAML frontmatter.
// ABOUTME: Writes go to a temp file that is synced and renamed over the target.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// atomicWrite replaces path with data. Readers see either the old or the new content.
func atomicWrite(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// renderFrontmatter renders fm as a YAML frontmatter block followed by body.
func renderFrontmatter(fm any, body string) (string, error) {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(frontmatterDelim + "\n")
	sb.Write(data)
	sb.WriteString(frontmatterDelim + "\n")
	sb.WriteString(body)
	return sb.String(), nil
}

// parseFrontmatter splits a document into its YAML frontmatter and body.
// It returns an empty frontmatter when the document has none.
func parseFrontmatter(content string) (string, string) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, frontmatterDelim+"\n") {
		return "", content
	}
	rest := content[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim+"\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n"+frontmatterDelim) {
			return rest[:len(rest)-len(frontmatterDelim)-1], ""
		}
		return "", content
	}
	return rest[:end], rest[end+len(frontmatterDelim)+2:]
}

// formatTime renders timestamps the way every store file does.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
