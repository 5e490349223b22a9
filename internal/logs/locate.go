package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dayrun/internal/day"
)

// RunLogPointer is the symlink naming the newest run log.
const RunLogPointer = "dayrun.log"

// Locate returns the newest day log for d under dayLogDir, or "" when none
// was written.
func Locate(dayLogDir string, d day.Day) (string, error) {
	dir := filepath.Join(dayLogDir, fmt.Sprintf("%04d", d.Year))
	matches, err := filepath.Glob(filepath.Join(dir, d.String()+"*.log"))
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod time.Time
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = match, info.ModTime()
		}
	}
	return newest, nil
}

// RunLog resolves the run log pointer in logDir to the file it names.
func RunLog(logDir string) (string, error) {
	link := filepath.Join(logDir, RunLogPointer)
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("resolve %s: %w", link, err)
	}
	return target, nil
}
