package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReportFormats lists the accepted report formats.
var ReportFormats = []string{"text", "json", "csv", "yaml"}

// Format renders the report as text, json, csv or yaml.
func (r *Report) Format(format string) (string, error) {
	switch strings.ToLower(format) {
	case "json":
		return r.formatJSON()
	case "csv":
		return r.formatCSV()
	case "yaml", "yml":
		return r.formatYAML()
	case "", "text":
		return r.formatText(), nil
	default:
		return "", fmt.Errorf("unsupported report format %q", format)
	}
}

// Save writes the formatted report to outputFile, or to w when outputFile is
// empty.
func (r *Report) Save(w io.Writer, format, outputFile string) error {
	output, err := r.Format(format)
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}

	if outputFile == "" {
		_, err = io.WriteString(w, output)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// PrintStats writes run statistics to w.
func (r *Report) PrintStats(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", r.Total)
	_, _ = fmt.Fprintf(w, "  Succeeded: %d\n", r.SuccessCount)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", r.FailureCount)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.Workers)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if r.Total > 0 {
		_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", (r.Duration / time.Duration(r.Total)).Round(time.Millisecond))
	}
	if r.ArchivePath != "" {
		_, _ = fmt.Fprintf(w, "  Archive: %s\n", r.ArchivePath)
	}
}

func (r *Report) formatJSON() (string, error) {
	bts, err := json.MarshalIndent(r, "", "  ")
	return string(bts), err
}

func (r *Report) formatYAML() (string, error) {
	bts, err := yaml.Marshal(r)
	return string(bts), err
}

func (r *Report) formatCSV() (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	rows := [][]string{{"index", "input", "outcome", "output", "message", "region_source", "x", "y", "width", "height", "id", "id_tier"}}

	for _, res := range r.Results {
		row := []string{strconv.Itoa(res.Index), res.Input, res.Outcome.String(), res.OutputPath, res.Message, "", "", "", "", "", res.ID, ""}
		if res.RegionSource != nil {
			row[5] = res.RegionSource.String()
		}
		if res.CropRect != nil {
			row[6] = strconv.Itoa(res.CropRect.X)
			row[7] = strconv.Itoa(res.CropRect.Y)
			row[8] = strconv.Itoa(res.CropRect.Width)
			row[9] = strconv.Itoa(res.CropRect.Height)
		}
		if res.IDTier != nil {
			row[11] = res.IDTier.String()
		}
		rows = append(rows, row)
	}

	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func (r *Report) formatText() string {
	var output strings.Builder
	output.WriteString(r.Summary())
	output.WriteString("\n")
	for _, res := range r.Results {
		if res.Succeeded() {
			fmt.Fprintf(&output, "  ok    %s -> %s", res.Input, res.OutputPath)
			if res.RegionSource != nil {
				fmt.Fprintf(&output, " (%s)", res.RegionSource)
			}
			output.WriteString("\n")
			continue
		}
		fmt.Fprintf(&output, "  FAIL  %s: %s\n", res.Input, res.Message)
	}
	if r.ArchivePath != "" {
		fmt.Fprintf(&output, "Archive: %s\n", r.ArchivePath)
	}
	return output.String()
}
