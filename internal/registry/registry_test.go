package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testClient() *Client {
	return &Client{region: "europe-west1", project: "sandbox-prod", repoName: "sandboxes"}
}

func TestRegistryHost(t *testing.T) {
	assert.Equal(t, "europe-west1-docker.pkg.dev", testClient().RegistryHost())
}

func TestRepoTag(t *testing.T) {
	c := testClient()
	assert.Equal(t, "europe-west1-docker.pkg.dev/sandbox-prod/sandboxes/proj-1:latest", c.RepoTag("proj-1", "latest"))
	assert.Equal(t, "europe-west1-docker.pkg.dev/sandbox-prod/sandboxes/proj-1:20260101-120000", c.RepoTag("proj-1", "20260101-120000"))
}

func TestRepoParentAndPackageParent(t *testing.T) {
	c := testClient()
	assert.Equal(t, "projects/sandbox-prod/locations/europe-west1/repositories/sandboxes", c.repoParent())
	assert.Equal(t, "projects/sandbox-prod/locations/europe-west1/repositories/sandboxes/packages/proj-1", c.packageParent("proj-1"))
}
