package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

const (
	resourceImage = "image"
	resourceVideo = "video"
)

// Asset is a stored upload.
type Asset struct {
	URL      string
	PublicID string
	Kind     enums.MediaKind
}

// Client wraps the Cloudinary upload API for gem media.
type Client struct {
	cld        *cld.Cloudinary
	rootFolder string
	logg       *logger.Logger
}

// NewClient builds a client from a cloudinary:// URL.
func NewClient(cfg config.CloudinaryConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("cloudinary url is required")
	}
	conn, err := cld.NewFromURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("configure cloudinary: %w", err)
	}
	root := strings.Trim(strings.TrimSpace(cfg.Folder), "/")
	if root == "" {
		root = "hidden-gems"
	}
	return &Client{cld: conn, rootFolder: root, logg: logg}, nil
}

// Upload stores file under {root}/{folder} and returns its secure URL and public id.
func (c *Client) Upload(ctx context.Context, folder, name string, kind enums.MediaKind, file io.Reader) (*Asset, error) {
	if c == nil || c.cld == nil {
		return nil, errors.New("cloudinary client not configured")
	}
	overwrite := false
	unique := true
	res, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:         c.Folder(folder),
		PublicID:       PublicIDFromFilename(name),
		Overwrite:      &overwrite,
		UniqueFilename: &unique,
		ResourceType:   ResourceType(kind),
	})
	if err != nil {
		return nil, fmt.Errorf("upload to cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("upload to cloudinary: %s", res.Error.Message)
	}
	return &Asset{URL: res.SecureURL, PublicID: res.PublicID, Kind: kind}, nil
}

// Destroy removes an asset. A missing asset is not an error.
func (c *Client) Destroy(ctx context.Context, publicID string, kind enums.MediaKind) error {
	if c == nil || c.cld == nil {
		return errors.New("cloudinary client not configured")
	}
	if strings.TrimSpace(publicID) == "" {
		return nil
	}
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: ResourceType(kind),
	})
	if err != nil {
		return fmt.Errorf("destroy cloudinary asset %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("destroy cloudinary asset %s: %s", publicID, res.Error.Message)
	}
	if res.Result != "ok" && res.Result != "not found" && c.logg != nil {
		c.logg.Warn(ctx, "unexpected cloudinary destroy result "+res.Result)
	}
	return nil
}

// Folder joins the configured root with a per-gem folder.
func (c *Client) Folder(sub string) string {
	sub = strings.Trim(strings.TrimSpace(sub), "/")
	if sub == "" {
		return c.rootFolder
	}
	return c.rootFolder + "/" + sub
}

// ResourceType maps a media kind to Cloudinary's resource_type.
func ResourceType(kind enums.MediaKind) string {
	if kind == enums.MediaKindVideo {
		return resourceVideo
	}
	return resourceImage
}

// PublicIDFromFilename strips the extension and any characters Cloudinary
// would reject from a user-supplied filename.
func PublicIDFromFilename(name string) string {
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(name, "\\", "/")), path.Ext(name))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
