package support

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/idcrop/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

func (testCtx *TestContext) saveImage(img image.Image, name string) error {
	path := testCtx.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save test image %s: %w", name, err)
	}
	return nil
}

// anIDCardImage writes a synthetic card whose portrait the skin heuristic
// finds.
func (testCtx *TestContext) anIDCardImage(name string) error {
	return testCtx.saveImage(testutil.IDCardImage(testutil.SmallSize, "ID CARD"), name)
}

// aBlankImage writes an image without skin tones, so only the default
// region applies.
func (testCtx *TestContext) aBlankImage(name string) error {
	size := testutil.SmallSize
	return testCtx.saveImage(testutil.SolidImage(size.Width, size.Height, testutil.BackgroundColor), name)
}

func (testCtx *TestContext) aCorruptImage(name string) error {
	path := testCtx.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("this is not an image"), 0o600)
}

func (testCtx *TestContext) aDirectoryWithIDCardImages(dir string, n int) error {
	for i := range n {
		if err := testCtx.anIDCardImage(filepath.Join(dir, fmt.Sprintf("card%d.png", i))); err != nil {
			return err
		}
	}
	return nil
}

// theOCRTextFor writes the sidecar text file read by the sidecar backend.
func (testCtx *TestContext) theOCRTextFor(text, image string) error {
	return os.WriteFile(testCtx.Path(image)+".txt", []byte(text), 0o600)
}

// RegisterImageSteps registers the input fixture steps.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an ID card image "([^"]*)"$`, testCtx.anIDCardImage)
	sc.Step(`^a blank image "([^"]*)"$`, testCtx.aBlankImage)
	sc.Step(`^a corrupt image "([^"]*)"$`, testCtx.aCorruptImage)
	sc.Step(`^a corrupt PDF "([^"]*)"$`, testCtx.aCorruptImage)
	sc.Step(`^a directory "([^"]*)" with (\d+) ID card images?$`, testCtx.aDirectoryWithIDCardImages)
	sc.Step(`^the OCR text "([^"]*)" for "([^"]*)"$`, testCtx.theOCRTextFor)
}
