package batch

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/face"
	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/idtext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *Report {
	src := face.SourceHeuristic
	tier := idtext.TierEightDigit
	return newReport([]Result{
		{
			Index:        0,
			Input:        "in/a.png",
			Outcome:      OutcomeSuccess,
			OutputPath:   "out/HS2345678.png",
			Elapsed:      20 * time.Millisecond,
			RegionSource: &src,
			CropRect:     &geometry.Rect{X: 1, Y: 2, Width: 30, Height: 40},
			ID:           "HS2345678",
			IDTier:       &tier,
		},
		{
			Index:   1,
			Input:   "in/b.png",
			Outcome: OutcomeFailure,
			Message: "load: open in/b.png: no such file",
		},
	}, time.Second, 2)
}

func TestReport_FormatText(t *testing.T) {
	out, err := sampleReport().Format("text")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "1 of 2 images processed successfully, 1 failed\n"))
	assert.Contains(t, out, "ok    in/a.png -> out/HS2345678.png (heuristic)")
	assert.Contains(t, out, "FAIL  in/b.png: load: open in/b.png: no such file")
}

func TestReport_FormatJSON(t *testing.T) {
	out, err := sampleReport().Format("json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.InDelta(t, 2, decoded["total"], 0)
	results := decoded["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, "success", first["outcome"])
	assert.Equal(t, "heuristic", first["region_source"])
	assert.Equal(t, "eight_digit", first["id_tier"])
	second := results[1].(map[string]any)
	assert.Equal(t, "failure", second["outcome"])
	assert.NotContains(t, second, "crop_rect")
}

func TestReport_FormatCSV(t *testing.T) {
	out, err := sampleReport().Format("csv")
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "region_source", rows[0][5])
	assert.Equal(t, []string{"0", "in/a.png", "success", "out/HS2345678.png", "", "heuristic", "1", "2", "30", "40", "HS2345678", "eight_digit"}, rows[1])
	assert.Equal(t, "failure", rows[2][2])
	assert.Empty(t, rows[2][6])
}

func TestReport_FormatYAML(t *testing.T) {
	out, err := sampleReport().Format("yaml")
	require.NoError(t, err)

	var decoded struct {
		SuccessCount int `yaml:"success_count"`
		Results      []struct {
			Outcome string `yaml:"outcome"`
		} `yaml:"results"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 1, decoded.SuccessCount)
	require.Len(t, decoded.Results, 2)
	assert.Equal(t, "failure", decoded.Results[1].Outcome)
}

func TestReport_FormatUnknown(t *testing.T) {
	_, err := sampleReport().Format("xml")
	require.Error(t, err)
}

func TestReport_Save(t *testing.T) {
	r := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, r.Save(&buf, "text", ""))
	assert.Contains(t, buf.String(), "FAIL")

	path := filepath.Join(t.TempDir(), "report.json")
	buf.Reset()
	require.NoError(t, r.Save(&buf, "json", path))
	assert.Empty(t, buf.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success_count": 1`)
}

func TestReport_PrintStats(t *testing.T) {
	var buf bytes.Buffer
	sampleReport().PrintStats(&buf)

	assert.Contains(t, buf.String(), "Total images: 2")
	assert.Contains(t, buf.String(), "Failed: 1")
	assert.Contains(t, buf.String(), "Avg per image: 500ms")
}
