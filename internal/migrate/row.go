package migrate

import (
	"regexp"
	"strings"

	"github.com/ase-101/hackathon/internal/storage"
)

// Column indexes in the submissions sheet.
const (
	ColName  = 0
	ColTeam  = 1
	ColFiles = 9
)

const defaultTeam = "submission"

var whitespace = regexp.MustCompile(`[\s\p{Zs}]+`)

// Unit is one row's worth of work.
type Unit struct {
	Row    int // 1-based sheet row number
	Name   string
	Team   string
	Files  []string
	Folder string
}

// Cell returns cells[i], or "" for short rows.
func Cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// IsMigrated reports whether a files cell already holds a folder location.
func IsMigrated(cell string) bool {
	return strings.HasPrefix(strings.TrimSpace(cell), storage.LocationScheme)
}

// ParseFiles splits a files cell on ';', trims entries and drops blanks.
func ParseFiles(cell string) []string {
	var files []string
	for _, f := range strings.Split(cell, ";") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files
}

// Select decides whether the row at index (0 = header) needs migrating. When
// it does not, the returned string says why.
func Select(index int, cells []string) (Unit, string, bool) {
	cell := Cell(cells, ColFiles)
	if strings.TrimSpace(cell) == "" || IsMigrated(cell) {
		return Unit{}, "already migrated or empty", false
	}

	files := ParseFiles(cell)
	if len(files) == 0 {
		return Unit{}, "no files listed", false
	}

	return Unit{
		Row:   index + 1,
		Name:  Cell(cells, ColName),
		Team:  Cell(cells, ColTeam),
		Files: files,
	}, "", true
}

// FolderName joins team and token and replaces whitespace runs with '_'.
func FolderName(team, token string) string {
	if team == "" {
		team = defaultTeam
	}
	return whitespace.ReplaceAllString(team+"-"+token, "_")
}
