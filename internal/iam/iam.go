// Package iam manages per-user GCP service account lifecycle: the
// Object-Storage IAM Adapter's identity half.
package iam

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	admin "cloud.google.com/go/iam/admin/apiv1"
	adminpb "cloud.google.com/go/iam/admin/apiv1/adminpb"
	"google.golang.org/api/option"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
)

// Client wraps the GCP IAM Admin API for per-user service account
// provisioning.
type Client struct {
	admin      *admin.IamClient
	gcpProject string
}

func New(ctx context.Context, gcpProject, credentialsPath string) (*Client, error) {
	c, err := admin.NewIamClient(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("creating IAM client: %w", err)
	}
	return &Client{admin: c, gcpProject: gcpProject}, nil
}

func (c *Client) Close() error {
	return c.admin.Close()
}

// MakeSAID derives a deterministic service account ID from a user ID:
// sa-{first 26 hex chars of sha256(user_id)}. GCP SA IDs must be 6-30
// chars, lowercase+digits+hyphens, start with a letter — "sa-" plus 26
// hex chars is 29 chars, safely under the limit.
func MakeSAID(userID string) string {
	digest := sha256.Sum256([]byte(userID))
	return "sa-" + hex.EncodeToString(digest[:])[:26]
}

// CreateServiceAccount creates (or, if it already exists, looks up)
// the per-user service account. Returns its email address.
func (c *Client) CreateServiceAccount(ctx context.Context, userID string) (string, error) {
	saID := MakeSAID(userID)

	sa, err := c.admin.CreateServiceAccount(ctx, &adminpb.CreateServiceAccountRequest{
		Name:      "projects/" + c.gcpProject,
		AccountId: saID,
		ServiceAccount: &adminpb.ServiceAccount{
			DisplayName: fmt.Sprintf("Sandbox SA for user %s", userID),
		},
	})
	if err == nil {
		return sa.Email, nil
	}
	if isAlreadyExists(err) {
		return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", saID, c.gcpProject), nil
	}
	return "", sandboxerr.Wrap(sandboxerr.External, "creating service account", err)
}

// CreateServiceAccountKey generates a new JSON key for saEmail and
// returns the raw key JSON.
func (c *Client) CreateServiceAccountKey(ctx context.Context, saEmail string) ([]byte, error) {
	name := fmt.Sprintf("projects/%s/serviceAccounts/%s", c.gcpProject, saEmail)
	key, err := c.admin.CreateServiceAccountKey(ctx, &adminpb.CreateServiceAccountKeyRequest{
		Name:           name,
		PrivateKeyType: adminpb.ServiceAccountPrivateKeyType_TYPE_GOOGLE_CREDENTIALS_FILE,
	})
	if err != nil {
		return nil, sandboxerr.Wrap(sandboxerr.External, "creating service account key", err)
	}
	return key.PrivateKeyData, nil
}

// DeleteServiceAccount is idempotent.
func (c *Client) DeleteServiceAccount(ctx context.Context, saEmail string) error {
	name := fmt.Sprintf("projects/%s/serviceAccounts/%s", c.gcpProject, saEmail)
	err := c.admin.DeleteServiceAccount(ctx, &adminpb.DeleteServiceAccountRequest{Name: name})
	if err != nil && !isNotFound(err) {
		return sandboxerr.Wrap(sandboxerr.External, "deleting service account", err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return err != nil && grpcCode(err) == "AlreadyExists"
}

func isNotFound(err error) bool {
	return err != nil && grpcCode(err) == "NotFound"
}

// grpcCode extracts a coarse status-code name from a google-api error
// without importing the full grpc status machinery at every call
// site; the IAM Admin client surfaces googleapis/rpc status errors
// whose String() embeds the code name.
func grpcCode(err error) string {
	s := err.Error()
	for _, code := range []string{"AlreadyExists", "NotFound"} {
		if contains(s, code) {
			return code
		}
	}
	return ""
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
