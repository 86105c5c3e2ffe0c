// Package registry lists and prunes per-project snapshot images in
// Artifact Registry: the Image Registry Adapter.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	artifactregistry "cloud.google.com/go/artifactregistry/apiv1"
	"cloud.google.com/go/artifactregistry/apiv1/artifactregistrypb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
)

// snapshotTagLayout matches the YYYYMMDD-HHMMSS tags minted by the
// snapshot engine. The floating "latest" tag is excluded from listings.
const snapshotTagLayout = "20060102-150405"

// Snapshot describes one tagged image version for a project.
type Snapshot struct {
	Tag       string
	CreatedAt time.Time
}

// Client wraps the Artifact Registry Admin API.
type Client struct {
	ar       *artifactregistry.Client
	region   string
	project  string
	repoName string // repository ID, e.g. "sandboxes"
}

func New(ctx context.Context, region, gcpProject, repository, credentialsPath string) (*Client, error) {
	c, err := artifactregistry.NewClient(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("creating artifact registry client: %w", err)
	}
	return &Client{ar: c, region: region, project: gcpProject, repoName: repository}, nil
}

func (c *Client) Close() error {
	return c.ar.Close()
}

func (c *Client) repoParent() string {
	return fmt.Sprintf("projects/%s/locations/%s/repositories/%s", c.project, c.region, c.repoName)
}

func (c *Client) packageParent(projectID string) string {
	return fmt.Sprintf("%s/packages/%s", c.repoParent(), projectID)
}

// RegistryHost is the docker-push-able host, e.g.
// "europe-west1-docker.pkg.dev".
func (c *Client) RegistryHost() string {
	return c.region + "-docker.pkg.dev"
}

// RepoTag returns the fully qualified image reference for a given
// project and tag: {region}-docker.pkg.dev/{gcp_project}/{repository}/{project_id}:{tag}.
func (c *Client) RepoTag(projectID, tag string) string {
	return fmt.Sprintf("%s/%s/%s/%s:%s", c.RegistryHost(), c.project, c.repoName, projectID, tag)
}

// ListSnapshots returns a project's snapshot tags, newest first,
// excluding the floating "latest" tag.
func (c *Client) ListSnapshots(ctx context.Context, projectID string) ([]Snapshot, error) {
	it := c.ar.ListDockerImages(ctx, &artifactregistrypb.ListDockerImagesRequest{
		Parent: c.repoParent(),
	})

	imagePrefix := fmt.Sprintf("%s/%s/%s/%s", c.RegistryHost(), c.project, c.repoName, projectID)

	var snapshots []Snapshot
	for {
		img, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, sandboxerr.Wrap(sandboxerr.External, "listing docker images", err)
		}
		if !strings.HasPrefix(img.Uri, imagePrefix) {
			continue
		}
		for _, tag := range img.Tags {
			if tag == "latest" {
				continue
			}
			createdAt, err := time.Parse(snapshotTagLayout, tag)
			if err != nil {
				continue
			}
			snapshots = append(snapshots, Snapshot{Tag: tag, CreatedAt: createdAt.UTC()})
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// DeleteAllVersions force-deletes every version (tag included) of a
// project's package. Individual version-delete failures are
// collected, not fatal: best-effort cleanup during project deletion
// must not abort on a single stuck version.
func (c *Client) DeleteAllVersions(ctx context.Context, projectID string) error {
	it := c.ar.ListVersions(ctx, &artifactregistrypb.ListVersionsRequest{
		Parent: c.packageParent(projectID),
	})

	var firstErr error
	for {
		ver, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return sandboxerr.Wrap(sandboxerr.External, "listing versions", err)
		}
		op, err := c.ar.DeleteVersion(ctx, &artifactregistrypb.DeleteVersionRequest{
			Name:  ver.Name,
			Force: true,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := op.Wait(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return sandboxerr.Wrap(sandboxerr.External, "deleting versions", firstErr)
	}
	return nil
}
