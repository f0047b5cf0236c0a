package gems

import (
	"strconv"
	"time"

	"github.com/gosimple/slug"
)

// Slugify transliterates name to ASCII and joins its words with dashes, so
// "Île de Gorée" becomes "ile-de-goree".
func Slugify(name string) string {
	return slug.Make(name)
}

// suffixedSlug appends the unix timestamp used when the base slug is taken.
func suffixedSlug(base string, at time.Time) string {
	return base + "-" + strconv.FormatInt(at.Unix(), 10)
}
