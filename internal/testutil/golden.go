package testutil

import (
	"bytes"
	"flag"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

// go test ./internal/report -run TestGolden -update [-goldenFixture=library,orders]
var (
	updateGolden  = flag.Bool("update", false, "rewrite golden files instead of comparing")
	goldenFixture = flag.String("goldenFixture", "", "comma-separated fixtures to run golden tests for")
)

func ShouldUpdate() bool { return *updateGolden }

// ShouldTestFixture reports whether name passes the -goldenFixture filter.
func ShouldTestFixture(name string) bool {
	if *goldenFixture == "" {
		return true
	}
	names := strings.Split(*goldenFixture, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return slices.Contains(names, name)
}

// Normalize turns CRLF into LF and replaces the fixture's absolute root with
// $FIXTURE so golden output does not depend on the checkout location.
func Normalize(fixture *FixtureContext, data []byte) []byte {
	out := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if fixture == nil || fixture.Root == "" {
		return out
	}
	return bytes.ReplaceAll(out, []byte(fixture.Root), []byte("$FIXTURE"))
}

// CompareGolden fails t with a unified diff when got differs from
// expected/<name>. With -update the file is rewritten instead.
func CompareGolden(t *testing.T, fixture *FixtureContext, name string, got []byte) {
	t.Helper()

	got = Normalize(fixture, got)
	path := fixture.ExpectedPath(name)
	if ShouldUpdate() {
		UpdateGolden(t, fixture, name, got)
		t.Logf("updated %s", path)
		return
	}

	want, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		t.Fatalf("missing golden file %s; rerun with -update. Output was:\n%s", path, got)
	case err != nil:
		t.Fatalf("read golden file: %v", err)
	}
	want = Normalize(nil, want)

	if !bytes.Equal(got, want) {
		t.Fatalf("%s differs from golden output (rerun with -update to accept):\n%s", name, unifiedDiff(string(want), string(got), path))
	}
}

func UpdateGolden(t *testing.T, fixture *FixtureContext, name string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(fixture.ExpectedDir, 0o755); err != nil {
		t.Fatalf("create %s: %v", fixture.ExpectedDir, err)
	}
	if err := os.WriteFile(fixture.ExpectedPath(name), data, 0o644); err != nil {
		t.Fatalf("write golden file: %v", err)
	}
}

func unifiedDiff(want, got, path string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: path + " (expected)",
		ToFile:   path + " (got)",
		Context:  3,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}

// ForEachFixture runs fn as a subtest per fixture under testdata/fixtures.
func ForEachFixture(t *testing.T, fn func(t *testing.T, fixture *FixtureContext)) {
	t.Helper()

	names := AvailableFixtures(t)
	if len(names) == 0 {
		t.Skip("no fixtures under testdata/fixtures")
	}
	for _, name := range names {
		if ShouldTestFixture(name) {
			t.Run(name, func(t *testing.T) { fn(t, LoadFixture(t, name)) })
		}
	}
}
