package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

var (
	fileNameRe   = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	slugUnsafeRe = regexp.MustCompile(`[^a-z0-9]+`)
)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its path. It refuses to
// reuse a version already present in dir.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := time.Now().UTC().Format(versionLayout)
	existing, err := versionsIn(dir)
	if err != nil {
		return "", err
	}
	if prev, taken := existing[version]; taken {
		return "", fmt.Errorf("version %s already used by %q, retry in a second", version, prev)
	}

	path := filepath.Join(dir, version+"_"+slug+".sql")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(migrationTemplate, slug)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks every .sql file in dir and reports all problems found,
// not just the first.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	seen := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		version, err := parseFileName(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if prev, dup := seen[version]; dup {
			errs = multierr.Append(errs, fmt.Errorf("version %s used by both %q and %q", version, prev, name))
		}
		seen[version] = name
		errs = multierr.Append(errs, checkSections(filepath.Join(dir, name)))
	}
	if len(seen) == 0 && errs == nil {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	return errs
}

func parseFileName(name string) (string, error) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("migration %q: expected YYYYMMDDHHMMSS_name.sql", name)
	}
	if _, err := time.Parse(versionLayout, m[1]); err != nil {
		return "", fmt.Errorf("migration %q: version %s is not a UTC timestamp", name, m[1])
	}
	return m[1], nil
}

func checkSections(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	body := string(raw)
	var errs error
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(body, marker) {
			errs = multierr.Append(errs, fmt.Errorf("migration %q missing %q", filepath.Base(path), marker))
		}
	}
	return errs
}

func versionsIn(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		if m := fileNameRe.FindStringSubmatch(entry.Name()); m != nil {
			out[m[1]] = entry.Name()
		}
	}
	return out, nil
}

func slugify(name string) string {
	slug := slugUnsafeRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}
