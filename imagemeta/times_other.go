//go:build !linux

package imagemeta

import (
	"os"
	"time"
)

// statTimes: creation and access times are not portably exposed; they map
// to null in the catalog.
func statTimes(info os.FileInfo) (created, accessed *time.Time) {
	return nil, nil
}
