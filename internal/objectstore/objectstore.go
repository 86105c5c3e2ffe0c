// Package objectstore manages per-user GCS buckets: the
// Object-Storage IAM Adapter's storage half.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
)

const objectAdminRole = "roles/storage.objectAdmin"

// Client wraps the GCS client for per-user bucket provisioning.
type Client struct {
	gcs        *storage.Client
	gcpProject string
	location   string // e.g. "EUROPE-WEST1"
}

func New(ctx context.Context, gcpProject, location, credentialsPath string) (*Client, error) {
	c, err := storage.NewClient(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &Client{gcs: c, gcpProject: gcpProject, location: location}, nil
}

func (c *Client) Close() error {
	return c.gcs.Close()
}

// MakeBucketName derives a deterministic bucket name from a user ID:
// {gcp_project}-u-{first 12 hex chars of sha256(user_id)}.
func (c *Client) MakeBucketName(userID string) string {
	digest := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("%s-u-%s", c.gcpProject, hex.EncodeToString(digest[:])[:12])
}

// EnsureBucket creates bucketName if it does not already exist, as a
// STANDARD-class, uniform-bucket-level-access bucket in c.location.
func (c *Client) EnsureBucket(ctx context.Context, bucketName string) error {
	bkt := c.gcs.Bucket(bucketName)
	if _, err := bkt.Attrs(ctx); err == nil {
		return nil
	} else if err != storage.ErrBucketNotExist {
		return sandboxerr.Wrap(sandboxerr.External, "checking bucket attrs", err)
	}

	err := bkt.Create(ctx, c.gcpProject, &storage.BucketAttrs{
		Location:     c.location,
		StorageClass: "STANDARD",
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{
			Enabled: true,
		},
	})
	if err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "creating bucket", err)
	}
	return nil
}

// BindObjectAdmin grants roles/storage.objectAdmin on bucketName to
// saEmail, scoped to the bucket only (never project-wide).
func (c *Client) BindObjectAdmin(ctx context.Context, bucketName, saEmail string) error {
	bkt := c.gcs.Bucket(bucketName)
	policy, err := bkt.IAM().V3().Policy(ctx)
	if err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "reading bucket IAM policy", err)
	}

	member := "serviceAccount:" + saEmail
	policy.Bindings = append(policy.Bindings, &storage.IAMBindingV3{
		Role:    objectAdminRole,
		Members: []string{member},
	})

	if err := bkt.IAM().V3().SetPolicy(ctx, policy); err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "setting bucket IAM policy", err)
	}
	return nil
}

// DeleteObjectsWithPrefix removes every object under prefix (e.g.
// "{project_id}/") in bucketName, used when a single project is
// deleted but its owner's bucket and other projects' data survive.
func (c *Client) DeleteObjectsWithPrefix(ctx context.Context, bucketName, prefix string) error {
	return c.deleteObjects(ctx, bucketName, &storage.Query{Prefix: prefix})
}

// DeleteAllObjects empties bucketName so it can subsequently be
// deleted (GCS refuses to delete a non-empty bucket).
func (c *Client) DeleteAllObjects(ctx context.Context, bucketName string) error {
	return c.deleteObjects(ctx, bucketName, nil)
}

func (c *Client) deleteObjects(ctx context.Context, bucketName string, query *storage.Query) error {
	bkt := c.gcs.Bucket(bucketName)
	it := bkt.Objects(ctx, query)
	for {
		obj, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return sandboxerr.Wrap(sandboxerr.External, "listing bucket objects", err)
		}
		if err := bkt.Object(obj.Name).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
			return sandboxerr.Wrap(sandboxerr.External, "deleting bucket object", err)
		}
	}
	return nil
}

// DeleteBucket removes bucketName. Callers must empty it first via
// DeleteAllObjects.
func (c *Client) DeleteBucket(ctx context.Context, bucketName string) error {
	err := c.gcs.Bucket(bucketName).Delete(ctx)
	if err != nil && err != storage.ErrBucketNotExist {
		return sandboxerr.Wrap(sandboxerr.External, "deleting bucket", err)
	}
	return nil
}
