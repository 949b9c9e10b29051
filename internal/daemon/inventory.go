package daemon

import (
	"errors"
	"io/fs"
	"os"

	"inboxwatch/internal/config"
	"inboxwatch/internal/watcher"
)

// StageListing is the set of files currently sitting in one stage directory.
type StageListing struct {
	Stage string
	Dir   string
	Files []os.FileInfo

	// Missing is set when the directory does not exist.
	Missing bool
}

// Inventory lists every stage directory. A file's directory is its stage, so
// this is the reconciliation view after a crash.
func Inventory(cfg *config.Config) ([]StageListing, error) {
	dirs := cfg.StageDirs()
	listings := make([]StageListing, 0, len(dirs))
	for _, dir := range dirs {
		listing := StageListing{Stage: dir.Name, Dir: dir.Path}
		files, err := watcher.ListFiles(dir.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			listing.Missing = true
		case err != nil:
			return nil, err
		default:
			listing.Files = files
		}
		listings = append(listings, listing)
	}
	return listings, nil
}
