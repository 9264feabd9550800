package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateStoredFilename returns a globally unique stored filename for the
// given extension: unix-nano timestamp plus a uuid suffix. Stored names are
// never reused.
func GenerateStoredFilename(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%d_%s.%s", time.Now().UnixNano(), suffix, ext)
}
