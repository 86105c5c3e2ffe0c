// Package tenant provisions the per-user GCS bucket and scoped service
// account a sandbox needs to persist its workspace: the Tenant
// Provisioner.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/Bitsy-Chuck/pomodex/internal/iam"
	"github.com/Bitsy-Chuck/pomodex/internal/log"
	"github.com/Bitsy-Chuck/pomodex/internal/objectstore"
	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/security"
	"github.com/Bitsy-Chuck/pomodex/internal/storage"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// Provisioner drives the one-time, idempotent per-user GCP setup:
// bucket, service account, key, and a bucket-scoped IAM binding.
type Provisioner struct {
	store   storage.Store
	iam     *iam.Client
	objects *objectstore.Client
	vault   *security.Vault
}

func New(store storage.Store, iamClient *iam.Client, objectClient *objectstore.Client, vault *security.Vault) *Provisioner {
	return &Provisioner{store: store, iam: iamClient, objects: objectClient, vault: vault}
}

// Ensure provisions (or returns the already-provisioned) tenant
// credentials for userID. Each step is committed to the store as soon
// as it completes, so a retry after a mid-provisioning crash resumes
// from the last completed step instead of re-running it: in
// particular it never mints a second, orphaned service account key for
// a user that already has one recorded.
func (p *Provisioner) Ensure(ctx context.Context, userID string) (*types.TenantCredentials, error) {
	creds, err := p.store.GetTenantCredentials(ctx, userID)
	if err != nil && !sandboxerr.IsNotFound(err) {
		return nil, fmt.Errorf("loading tenant credentials: %w", err)
	}
	if creds == nil {
		creds = &types.TenantCredentials{UserID: userID}
	}
	if len(creds.CredentialMaterial) > 0 {
		return creds, nil
	}

	if creds.BucketName == "" {
		bucketName := p.objects.MakeBucketName(userID)
		if err := p.objects.EnsureBucket(ctx, bucketName); err != nil {
			return nil, fmt.Errorf("ensuring bucket: %w", err)
		}
		creds.BucketName = bucketName
		if err := p.store.UpsertTenantCredentials(ctx, creds); err != nil {
			return nil, fmt.Errorf("persisting bucket checkpoint: %w", err)
		}
	}

	if creds.ServiceAccountEmail == "" {
		saEmail, err := p.iam.CreateServiceAccount(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("ensuring service account: %w", err)
		}
		if err := p.objects.BindObjectAdmin(ctx, creds.BucketName, saEmail); err != nil {
			return nil, fmt.Errorf("binding bucket IAM: %w", err)
		}
		creds.ServiceAccountEmail = saEmail
		if err := p.store.UpsertTenantCredentials(ctx, creds); err != nil {
			return nil, fmt.Errorf("persisting service account checkpoint: %w", err)
		}
	}

	keyJSON, err := p.iam.CreateServiceAccountKey(ctx, creds.ServiceAccountEmail)
	if err != nil {
		return nil, fmt.Errorf("creating service account key: %w", err)
	}

	encrypted, err := p.vault.Encrypt(keyJSON)
	if err != nil {
		return nil, fmt.Errorf("encrypting credential material: %w", err)
	}

	now := time.Now().UTC()
	creds.CredentialMaterial = encrypted
	creds.ProvisionedAt = &now
	if err := p.store.UpsertTenantCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("persisting tenant credentials: %w", err)
	}

	log.WithUserID(userID).Info().
		Str("bucket", creds.BucketName).
		Str("service_account", creds.ServiceAccountEmail).
		Msg("tenant provisioned")
	return creds, nil
}

// DecryptKey returns the plaintext GCP service account key JSON for
// creds, for use building container environment variables and rclone
// auth config. Callers must not persist the result.
func (p *Provisioner) DecryptKey(creds *types.TenantCredentials) ([]byte, error) {
	return p.vault.Decrypt(creds.CredentialMaterial)
}

// Teardown deletes all objects under the user's bucket and the bucket
// itself, along with the service account. Used when a user's account
// (and every project it owns) is permanently removed.
func (p *Provisioner) Teardown(ctx context.Context, creds *types.TenantCredentials) error {
	if err := p.objects.DeleteAllObjects(ctx, creds.BucketName); err != nil {
		return fmt.Errorf("emptying bucket: %w", err)
	}
	if err := p.objects.DeleteBucket(ctx, creds.BucketName); err != nil {
		return fmt.Errorf("deleting bucket: %w", err)
	}
	if err := p.iam.DeleteServiceAccount(ctx, creds.ServiceAccountEmail); err != nil {
		return fmt.Errorf("deleting service account: %w", err)
	}
	return nil
}
