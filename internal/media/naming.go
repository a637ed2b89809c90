package media

import (
	"path/filepath"
	"strings"
)

// unsafe characters stripped from series names when building filenames.
var unsafeReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// LibraryFilename builds the on-disk name for a retrieved episode. When
// rename is false the source filename is kept as-is.
func LibraryFilename(series *Series, episode *Episode, sourceName string, rename bool) string {
	if !rename {
		return filepath.Base(sourceName)
	}
	ext := filepath.Ext(sourceName)
	name := strings.TrimSpace(unsafeReplacer.Replace(series.Name))
	return name + " " + episode.Code() + ext
}

// LibraryPath resolves the directory an episode belongs in. A series with an
// explicit Path wins; otherwise the series gets a directory named after it
// under the library root.
func LibraryPath(libraryDir string, series *Series) string {
	if strings.TrimSpace(series.Path) != "" {
		return series.Path
	}
	return filepath.Join(libraryDir, strings.TrimSpace(unsafeReplacer.Replace(series.Name)))
}
