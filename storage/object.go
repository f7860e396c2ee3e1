package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"client-portal/auth"
	"client-portal/domain/mimetypes"
	"client-portal/errors"
)

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Object describes a stored file.
type Object struct {
	Bucket   string
	Path     string
	MimeType string
	Size     int64
}

// ObjectStore keeps files on disk under root/bucket/path and serves them
// through signed URLs.
type ObjectStore struct {
	log      *slog.Logger
	root     string
	signer   *auth.URLSigner
	maxBytes int64
	baseURL  string
}

// NewObjectStore serves signed URLs under baseURL, e.g. "/files".
func NewObjectStore(log *slog.Logger, root string, signer *auth.URLSigner, maxBytes int64, baseURL string) *ObjectStore {
	return &ObjectStore{log: log, root: root, signer: signer, maxBytes: maxBytes, baseURL: baseURL}
}

// resolve maps bucket and path to a file below root. Anything escaping the
// bucket directory is a validation error.
func (o *ObjectStore) resolve(bucket, objectPath string) (string, error) {
	if !bucketName.MatchString(bucket) {
		return "", errors.NewValidationError("bucket", "must be lowercase letters, digits or dashes")
	}
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return "", errors.NewValidationError("path", "must be a relative slash separated path")
	}
	cleaned := path.Clean(objectPath)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.NewValidationError("path", "must stay inside the bucket")
	}
	base := filepath.Join(o.root, bucket)
	full := filepath.Join(base, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", errors.NewValidationError("path", "must stay inside the bucket")
	}
	return full, nil
}

// Check validates an upload without writing anything and returns the
// detected media type.
func (o *ObjectStore) Check(bucket, objectPath string, data []byte) (mimetypes.MIME, error) {
	if _, err := o.resolve(bucket, objectPath); err != nil {
		return mimetypes.Unknown, err
	}
	if len(data) == 0 {
		return mimetypes.Unknown, errors.NewValidationError("file", "is empty")
	}
	if o.maxBytes > 0 && int64(len(data)) > o.maxBytes {
		return mimetypes.Unknown, errors.NewValidationError("file", fmt.Sprintf("exceeds %d bytes", o.maxBytes))
	}
	detected := mimetypes.ToMIME(mimetype.Detect(data).String())
	if !mimetypes.IsDeliverable(detected) {
		return detected, errors.NewValidationError("file", fmt.Sprintf("type %s is not allowed", detected))
	}
	return detected, nil
}

// Upload writes data atomically, an existing object is replaced.
func (o *ObjectStore) Upload(ctx context.Context, bucket, objectPath string, data []byte) (Object, error) {
	detected, err := o.Check(bucket, objectPath, data)
	if err != nil {
		return Object{}, err
	}
	if err = ctx.Err(); err != nil {
		return Object{}, o.fail("upload", bucket, err)
	}
	full, _ := o.resolve(bucket, objectPath)
	if err = os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return Object{}, o.fail("upload", bucket, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return Object{}, o.fail("upload", bucket, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Object{}, o.fail("upload", bucket, err)
	}
	if err = tmp.Close(); err != nil {
		return Object{}, o.fail("upload", bucket, err)
	}
	if err = os.Rename(tmp.Name(), full); err != nil {
		return Object{}, o.fail("upload", bucket, err)
	}
	o.log.Debug("Object uploaded", "bucket", bucket, "path", objectPath, "mime_type", detected, "size", len(data))
	return Object{Bucket: bucket, Path: path.Clean(objectPath), MimeType: string(detected), Size: int64(len(data))}, nil
}

// Remove deletes every path, missing objects are skipped.
func (o *ObjectStore) Remove(_ context.Context, bucket string, paths []string) error {
	var errs []error
	for _, p := range paths {
		full, err := o.resolve(bucket, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err = os.Remove(full); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return o.fail("remove", bucket, stderrors.Join(errs...))
	}
	return nil
}

// CreateSignedURL returns a URL granting read access to one object for ttl.
func (o *ObjectStore) CreateSignedURL(bucket, objectPath string, ttl time.Duration) (string, error) {
	if _, err := o.resolve(bucket, objectPath); err != nil {
		return "", err
	}
	token, err := o.signer.Sign(bucket, path.Clean(objectPath), ttl)
	if err != nil {
		return "", o.fail("sign", bucket, err)
	}
	return o.baseURL + "?token=" + url.QueryEscape(token), nil
}

// Open verifies a signed URL token and opens the object it grants.
func (o *ObjectStore) Open(token string) (*os.File, Object, error) {
	claims, err := o.signer.Verify(token)
	if err != nil {
		return nil, Object{}, fmt.Errorf("%w: %v", errors.ErrInvalidSignedURL, err)
	}
	full, err := o.resolve(claims.Bucket, claims.Path)
	if err != nil {
		return nil, Object{}, fmt.Errorf("%w: %v", errors.ErrInvalidSignedURL, err)
	}
	file, err := os.Open(full)
	if err != nil {
		return nil, Object{}, o.fail("open", claims.Bucket, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, Object{}, o.fail("open", claims.Bucket, err)
	}
	return file, Object{Bucket: claims.Bucket, Path: claims.Path, Size: info.Size()}, nil
}

func (o *ObjectStore) fail(op, bucket string, err error) error {
	kind := errors.KindUnavailable
	if stderrors.Is(err, fs.ErrNotExist) {
		kind = errors.KindNotFound
	}
	o.log.Error("Object store operation failed", "op", op, "relation", bucket, "error", err)
	return &errors.StoreError{Op: op, Relation: bucket, Kind: kind, Err: err}
}
