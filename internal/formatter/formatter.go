// package formatter exports and renders watchlist and liked-item lists (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the format names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want csv, md, txt or json)", shared.ErrInvalidFlag, s)
	}
}

func rating(t *models.Title) string {
	if t == nil || t.VoteAverage == 0 {
		return ""
	}
	return strconv.FormatFloat(t.VoteAverage, 'f', 1, 64)
}

func year(t *models.Title) string {
	if t == nil {
		return ""
	}
	return t.Year()
}

// Export renders export in format.
func Export(export *models.ListExport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export, "")
	case FormatText:
		return ExportToText(export)
	case FormatJSON:
		return ExportToJSON(export)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// ExportToCSV converts a ListExport to CSV format with columns: Position, Media ID, Media Type, Title, Year, Rating, Added
func ExportToCSV(export *models.ListExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Media ID", "Media Type", "Title", "Year", "Rating", "Added"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, entry := range export.Entries {
		title := ""
		if entry.Title != nil {
			title = entry.Title.Name
		}
		record := []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(entry.Item.MediaID),
			string(entry.Item.MediaType),
			title,
			year(entry.Title),
			rating(entry.Title),
			entry.Item.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a ListExport to Markdown format with an optional cover image
func ExportToMarkdown(export *models.ListExport, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Name)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	fmt.Fprintf(&buf, "**Titles**: %d\n", len(export.Entries))
	fmt.Fprintf(&buf, "**Exported**: %s\n\n", export.ExportedAt.UTC().Format("2006-01-02"))

	buf.WriteString("## Titles\n\n")
	for i, entry := range export.Entries {
		line := entry.DisplayName()
		if y := year(entry.Title); y != "" {
			line += fmt.Sprintf(" (%s)", y)
		}
		line += fmt.Sprintf(" [%s]", entry.Item.MediaType)
		if r := rating(entry.Title); r != "" {
			line += " ★ " + r
		}
		fmt.Fprintf(&buf, "%d. %s\n", i+1, line)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a ListExport to plain text format
func ExportToText(export *models.ListExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "List: %s\n", export.Name)
	fmt.Fprintf(&buf, "Titles: %d\n\n", len(export.Entries))

	for i, entry := range export.Entries {
		fmt.Fprintf(&buf, "%d. %s (%s)\n", i+1, entry.DisplayName(), entry.Item.MediaType)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a ListExport to indented JSON
func ExportToJSON(export *models.ListExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

type listMetadata struct {
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	Count      int       `json:"count"`
	ExportedAt time.Time `json:"exported_at"`
}

// ToMetadataJSON generates a JSON representation of list metadata (without entries)
func ToMetadataJSON(export *models.ListExport) ([]byte, error) {
	meta := listMetadata{Kind: export.Kind, Name: export.Name, Count: len(export.Entries), ExportedAt: export.ExportedAt}
	return json.MarshalIndent(meta, "", "  ")
}

// WriteTable renders entries as an aligned table for terminal output.
func WriteTable(w io.Writer, entries []models.ListEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tID\tTITLE\tYEAR\tRATING\tADDED")
	for i, entry := range entries {
		added := ""
		if !entry.Item.CreatedAt.IsZero() {
			added = entry.Item.CreatedAt.Local().Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			i+1, entry.Item.MediaType, entry.Item.MediaID, entry.DisplayName(), year(entry.Title), rating(entry.Title), added)
	}
	return tw.Flush()
}

// WriteTitleTable renders catalog titles as an aligned table for terminal output.
func WriteTitleTable(w io.Writer, titles []models.Title) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tID\tTITLE\tYEAR\tRATING")
	for i := range titles {
		t := &titles[i]
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", i+1, t.MediaType, t.ID, t.Name, year(t), rating(t))
	}
	return tw.Flush()
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	EntriesFile  string
	MetadataFile string
}

// WriteCSVExport exports a list to CSV format with an accompanying metadata JSON file.
//
// Defaults to the list kind as the base filename & creates {base}_titles.csv and {base}_metadata.json
func WriteCSVExport(export *models.ListExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Kind
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	entriesFile := baseFilepath + "_titles.csv"
	if err := os.WriteFile(entriesFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		EntriesFile:  entriesFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport exports a list to Markdown format in a dedicated directory.
//
// Directory name defaults to the list kind.
// The imageURL parameter is optional - if provided, attempts to download the cover image.
// Creates a directory structure: {dir}/README.md and optionally {dir}/cover.jpg
func WriteMarkdownExport(export *models.ListExport, outputDir string, imageURL string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = export.Kind
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if imageURL != "" {
		imageData, err := DownloadImage(imageURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(export, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports a list to plain text format.
//
// Defaults to {kind}_titles.txt as the filename.
func WriteTextExport(export *models.ListExport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_titles.txt", export.Kind)
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteJSONExport exports a list to JSON.
//
// Defaults to {kind}.json as the filename.
func WriteJSONExport(export *models.ListExport, path string) (string, error) {
	if path == "" {
		path = export.Kind + ".json"
	}

	data, err := ExportToJSON(export)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}
	return path, nil
}

type manifestEntry struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Success bool     `json:"success"`
	Files   []string `json:"files,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type manifest struct {
	Format          string          `json:"format"`
	OutputDirectory string          `json:"output_directory"`
	Total           int             `json:"total"`
	Successful      int             `json:"successful"`
	Failed          int             `json:"failed"`
	Lists           []manifestEntry `json:"lists"`
}

// WriteExportManifest writes a JSON summary of a multi-list export to path.
func WriteExportManifest(result *models.ExportResult, path string) error {
	m := manifest{
		Format:          result.Format,
		OutputDirectory: result.OutputDirectory,
		Total:           result.Total,
		Successful:      result.Successful,
		Failed:          result.Failed,
		Lists:           make([]manifestEntry, 0, len(result.Results)),
	}
	for _, r := range result.Results {
		entry := manifestEntry{Kind: r.Kind, Name: r.Name, Count: r.Count, Success: r.Success, Files: r.Files}
		if r.Error != nil {
			entry.Error = r.Error.Error()
		}
		m.Lists = append(m.Lists, entry)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
