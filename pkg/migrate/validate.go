package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

var fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

type migrationFile struct {
	name string
	at   time.Time
}

// ValidateDir checks the migration files under dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks file names, version uniqueness and the goose annotations
// of every migration in files.
func ValidateFS(files fs.FS) error {
	found, err := scan(files)
	if err != nil {
		return err
	}
	for _, f := range found {
		body, err := fs.ReadFile(files, f.name)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.name, err)
		}
		if err := checkAnnotations(string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", f.name, err)
		}
	}
	return nil
}

// scan lists the .sql files at the root of files ordered by version.
func scan(files fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []migrationFile
	versions := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		at, err := time.Parse(versionLayout, m[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: version is not a timestamp", e.Name())
		}
		if prev, ok := versions[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %s and %s", m[1], prev, e.Name())
		}
		versions[m[1]] = e.Name()
		out = append(out, migrationFile{name: e.Name(), at: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out, nil
}

// checkAnnotations requires an Up section before a Down section and balanced
// statement blocks inside each.
func checkAnnotations(body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf(`missing "-- +goose Up"`)
	case down < 0:
		return fmt.Errorf(`missing "-- +goose Down"`)
	case down < up:
		return fmt.Errorf("down section precedes up section")
	}

	for _, section := range []string{body[up:down], body[down:]} {
		open := 0
		for _, line := range strings.Split(section, "\n") {
			switch strings.TrimSpace(line) {
			case "-- +goose StatementBegin":
				open++
				if open > 1 {
					return fmt.Errorf("nested StatementBegin")
				}
			case "-- +goose StatementEnd":
				open--
				if open < 0 {
					return fmt.Errorf("StatementEnd without StatementBegin")
				}
			}
		}
		if open != 0 {
			return fmt.Errorf("unterminated StatementBegin")
		}
	}
	return nil
}
