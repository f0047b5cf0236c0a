package media

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// sniffLen matches how much mimetype itself reads to decide.
const sniffLen = 3072

var acceptedTypes = map[enums.MediaKind][]string{
	enums.MediaKindImage: {"image/jpeg", "image/png", "image/webp", "image/gif", "image/heic"},
	enums.MediaKindVideo: {"video/mp4", "video/webm", "video/quicktime"},
}

var (
	errUnsupportedMedia = errors.New("only images (jpeg, png, webp, gif, heic) and videos (mp4, webm, mov) are accepted")
	errMediaMismatch    = errors.New("file contents do not match the declared content type")
)

type inspected struct {
	kind        enums.MediaKind
	contentType string
	body        io.Reader
}

// inspectUpload decides the media kind from the file's leading bytes. A
// declared content type is optional but must agree with what was detected.
// The returned body still yields every byte of the original.
func inspectUpload(declared string, body io.Reader) (inspected, error) {
	buffered := bufio.NewReaderSize(body, sniffLen)
	head, err := buffered.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return inspected{}, fmt.Errorf("read upload: %w", err)
	}
	detected := mimetype.Detect(head)
	kind, contentType, ok := acceptedKind(detected)
	if !ok {
		return inspected{}, errUnsupportedMedia
	}

	if declared = strings.TrimSpace(declared); declared != "" {
		base, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return inspected{}, fmt.Errorf("content type %q: %w", declared, err)
		}
		claimed, _, ok := acceptedKind(mimetype.Lookup(strings.ToLower(base)))
		if !ok {
			return inspected{}, errUnsupportedMedia
		}
		if claimed != kind {
			return inspected{}, errMediaMismatch
		}
	}
	return inspected{kind: kind, contentType: contentType, body: buffered}, nil
}

func acceptedKind(m *mimetype.MIME) (enums.MediaKind, string, bool) {
	if m == nil {
		return "", "", false
	}
	for kind, types := range acceptedTypes {
		for _, t := range types {
			if m.Is(t) {
				return kind, t, true
			}
		}
	}
	return "", "", false
}
