package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

const (
	pingTimeout   = 5 * time.Second
	uploadTimeout = 30 * time.Second
	cacheControl  = "private, max-age=0"
)

var errClientNotInitialized = errors.New("gcs client not initialized")

// objectStore is the subset of the JSON API the client drives.
type objectStore interface {
	insert(ctx context.Context, bucket string, object *storage.Object, media io.Reader) (*storage.Object, error)
	list(ctx context.Context, bucket string) error
	delete(ctx context.Context, bucket, name string) error
}

type Client struct {
	objects       objectStore
	defaultBucket string
	publicBaseURL string
	logg          *logger.Logger
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Uploader stores customer-provided files and returns a stable URL.
type Uploader interface {
	Upload(ctx context.Context, objectName, contentType string, body io.Reader) (string, error)
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	svc, err := storage.NewService(ctx, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}

	client := newClient(&apiObjects{svc: svc}, cfg, logg)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func newClient(objects objectStore, cfg config.GCSConfig, logg *logger.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return &Client{
		objects:       objects,
		defaultBucket: strings.TrimSpace(cfg.BucketName),
		publicBaseURL: base,
		logg:          logg,
	}
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(storage.DevstorageReadWriteScope)}
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object to confirm bucket access.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.objects == nil {
		return errClientNotInitialized
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.objects.list(ctx, c.defaultBucket); err != nil {
		return fmt.Errorf("gcs object check failed: %w", err)
	}
	return nil
}

// Upload writes body to the default bucket and returns the object's URL.
func (c *Client) Upload(ctx context.Context, objectName, contentType string, body io.Reader) (string, error) {
	if c == nil || c.objects == nil {
		return "", errClientNotInitialized
	}
	objectName = strings.TrimLeft(strings.TrimSpace(objectName), "/")
	if objectName == "" {
		return "", errors.New("object name is required")
	}
	if body == nil {
		return "", errors.New("object body is required")
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	obj, err := c.objects.insert(ctx, c.defaultBucket, &storage.Object{
		Name:         objectName,
		ContentType:  contentType,
		CacheControl: cacheControl,
	}, body)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	name := objectName
	if obj != nil && obj.Name != "" {
		name = obj.Name
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"bucket": c.defaultBucket,
			"object": name,
		}), "gcs object uploaded")
	}
	return c.PublicURL(name), nil
}

// Delete removes an object; a missing object is not an error.
func (c *Client) Delete(ctx context.Context, objectName string) error {
	if c == nil || c.objects == nil {
		return errClientNotInitialized
	}
	err := c.objects.delete(ctx, c.defaultBucket, objectName)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// PublicURL builds the URL an object is served from.
func (c *Client) PublicURL(objectName string) string {
	segments := strings.Split(objectName, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return c.publicBaseURL + "/" + url.PathEscape(c.defaultBucket) + "/" + strings.Join(segments, "/")
}

// ReceiptObjectName returns a collision-free object path for a payment receipt.
func ReceiptObjectName(orderNumber, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	if len(ext) > 8 {
		ext = ""
	}
	return fmt.Sprintf("receipts/%s/%d-%s%s", sanitizeSegment(orderNumber), now.UTC().Unix(), uuid.NewString(), ext)
}

func sanitizeSegment(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// IsNotFound reports whether err is a 404 from the storage API.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

type apiObjects struct {
	svc *storage.Service
}

func (a *apiObjects) insert(ctx context.Context, bucket string, object *storage.Object, media io.Reader) (*storage.Object, error) {
	return a.svc.Objects.Insert(bucket, object).
		Media(media, googleapi.ContentType(object.ContentType)).
		Context(ctx).
		Do()
}

func (a *apiObjects) list(ctx context.Context, bucket string) error {
	_, err := a.svc.Objects.List(bucket).MaxResults(1).Context(ctx).Do()
	return err
}

func (a *apiObjects) delete(ctx context.Context, bucket, name string) error {
	return a.svc.Objects.Delete(bucket, name).Context(ctx).Do()
}
