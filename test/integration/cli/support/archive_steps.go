package support

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/cucumber/godog"
	"github.com/klauspost/compress/zip"
)

// archiveEntries lists the entries of the single faces_*.zip in dir.
func (testCtx *TestContext) archiveEntries(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(testCtx.Path(dir), "faces_*.zip"))
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no archive in %s", dir)
	case 1:
	default:
		return nil, fmt.Errorf("expected one archive in %s, found %v", dir, matches)
	}

	r, err := zip.OpenReader(matches[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func (testCtx *TestContext) theArchiveShouldContainEntries(dir string, want int) error {
	names, err := testCtx.archiveEntries(dir)
	if err != nil {
		return err
	}
	if len(names) != want {
		return fmt.Errorf("archive has %d entries, expected %d: %v", len(names), want, names)
	}
	return nil
}

func (testCtx *TestContext) theArchiveShouldContain(dir, name string) error {
	names, err := testCtx.archiveEntries(dir)
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("archive does not contain %s: %v", name, names)
	}
	return nil
}

func (testCtx *TestContext) noArchiveShouldExistIn(dir string) error {
	_, err := testCtx.archiveEntries(dir)
	if err == nil {
		return errors.New("archive exists but should not")
	}
	return nil
}

// RegisterArchiveSteps registers archive verification steps.
func (testCtx *TestContext) RegisterArchiveSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the archive in "([^"]*)" should contain (\d+) entries$`, testCtx.theArchiveShouldContainEntries)
	sc.Step(`^the archive in "([^"]*)" should contain "([^"]*)"$`, testCtx.theArchiveShouldContain)
	sc.Step(`^no archive should exist in "([^"]*)"$`, testCtx.noArchiveShouldExistIn)
}
