package runner

import (
	"testing"
	"time"

	"github.com/skyfay/dbackup/internal/storage"
)

func TestArtifactsFromListingExcludesSidecarsAndPairsThem(t *testing.T) {
	now := time.Now().UTC()
	objs := []storage.ObjectInfo{
		{Key: "backups/nightly/a.artifact", LastModified: now},
		{Key: "backups/nightly/a.artifact.meta.json", LastModified: now},
		{Key: "backups/nightly/b.artifact", LastModified: now.Add(-time.Hour)},
	}

	artifacts, metaByKey := artifactsFromListing(objs)

	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts (sidecars excluded), got %d: %+v", len(artifacts), artifacts)
	}
	for _, a := range artifacts {
		if a.Key == "backups/nightly/a.artifact.meta.json" {
			t.Fatalf("sidecar leaked into artifact list: %+v", a)
		}
	}
	if metaByKey["backups/nightly/a.artifact"] != "backups/nightly/a.artifact.meta.json" {
		t.Fatalf("expected sidecar pairing for a.artifact, got %+v", metaByKey)
	}
	if _, ok := metaByKey["backups/nightly/b.artifact"]; ok {
		t.Fatalf("b.artifact has no sidecar, should not appear in metaByKey")
	}
}
