// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestCatalogComplete(t *testing.T) {
	t.Parallel()

	all := Values()
	if len(all) != int(ContainerEngineNotFoundId) {
		t.Fatalf("Values() returned %d issues, want %d", len(all), ContainerEngineNotFoundId)
	}
	for i, iss := range all {
		if want := Id(i + 1); iss.Id() != want {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, iss.Id(), want)
		}
		if strings.TrimSpace(string(iss.MarkdownMsg())) == "" {
			t.Errorf("issue %d has an empty message", iss.Id())
		}
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()

	if Get(0) != nil {
		t.Error("Get(0) should be nil")
	}
}

func TestLinksAreCopies(t *testing.T) {
	t.Parallel()

	iss := Get(PackagingFailedId)
	links := iss.ExtLinks()
	if len(links) == 0 {
		t.Fatal("expected external links")
	}
	links[0] = "mutated"
	if iss.ExtLinks()[0] == "mutated" {
		t.Error("ExtLinks() must return a copy")
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	out, err := Get(BuildLockedId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "Another build is running") {
		t.Errorf("rendered output missing heading:\n%s", out)
	}
}
