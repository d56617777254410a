package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/flx/internal/formatter"
	"github.com/desertthunder/flx/internal/models"
)

// ExportOpts contains configuration for list exports.
type ExportOpts struct {
	Format     formatter.Format         // Export format: csv, md, txt, json
	OutputDir  string                   // Base output directory (default: flx_export_{epoch})
	NumWorkers int                      // Concurrent workers (default: 2)
	CoverURL   func(path string) string // Optional: maps a backdrop path to a downloadable image URL for Markdown covers
}

type exportJob struct {
	step   int
	export *models.ListExport
}

// ExportLists writes each list to OutputDir concurrently and finishes with a manifest summarizing the results.
//
// A list that fails to export is recorded in the result and does not stop the others.
func (e *CatalogEngine) ExportLists(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	exports []*models.ListExport,
	opts ExportOpts,
) (*models.ExportResult, error) {
	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("flx_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 2
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &models.ExportResult{
		Format:          string(opts.Format),
		OutputDirectory: opts.OutputDir,
		Total:           len(exports),
		Results:         make([]models.ListExportResult, 0, len(exports)),
	}

	jobs := make(chan exportJob, len(exports))
	results := make(chan models.ListExportResult, len(exports))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	for i, export := range exports {
		sendProgress(prog, exportingListUpdate(i+1, len(exports), export.Name))
		jobs <- exportJob{step: i + 1, export: export}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.Successful++
			sendProgress(prog, exportCompletedUpdate(completed, len(exports), res.Name, len(res.Files)))
		} else {
			result.Failed++
			sendProgress(prog, exportFailedUpdate(completed, len(exports), res.Name, res.Error))
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteExportManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// exportWorker is a worker goroutine that exports lists from the jobs channel.
func (e *CatalogEngine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan exportJob,
	results chan<- models.ListExportResult,
	opts ExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- models.ListExportResult{Kind: job.export.Kind, Name: job.export.Name, Error: err}
			continue
		}
		results <- e.exportSingleList(job.export, opts)
	}
}

func coverPath(export *models.ListExport) string {
	for _, entry := range export.Entries {
		if entry.Title != nil && entry.Title.BackdropPath != "" {
			return entry.Title.BackdropPath
		}
	}
	return ""
}

// exportSingleList writes one list in the requested format.
func (e *CatalogEngine) exportSingleList(export *models.ListExport, opts ExportOpts) models.ListExportResult {
	result := models.ListExportResult{
		Kind:  export.Kind,
		Name:  export.Name,
		Count: len(export.Entries),
		Files: []string{},
	}

	switch opts.Format {
	case formatter.FormatCSV:
		csvRes, err := formatter.WriteCSVExport(export, filepath.Join(opts.OutputDir, export.Kind))
		if err != nil {
			result.Error = fmt.Errorf("CSV export failed: %w", err)
			return result
		}
		result.Files = []string{csvRes.EntriesFile, csvRes.MetadataFile}

	case formatter.FormatMarkdown:
		var imageURL string
		if opts.CoverURL != nil {
			if p := coverPath(export); p != "" {
				imageURL = opts.CoverURL(p)
			}
		}

		mdRes, err := formatter.WriteMarkdownExport(export, filepath.Join(opts.OutputDir, export.Kind), imageURL)
		if err != nil {
			result.Error = fmt.Errorf("markdown export failed: %w", err)
			return result
		}
		result.Files = mdRes.Files

	case formatter.FormatText:
		path, err := formatter.WriteTextExport(export, filepath.Join(opts.OutputDir, export.Kind+"_titles.txt"))
		if err != nil {
			result.Error = fmt.Errorf("text export failed: %w", err)
			return result
		}
		result.Files = []string{path}

	default:
		path, err := formatter.WriteJSONExport(export, filepath.Join(opts.OutputDir, export.Kind+".json"))
		if err != nil {
			result.Error = fmt.Errorf("JSON export failed: %w", err)
			return result
		}
		result.Files = []string{path}
	}

	result.Success = true
	e.logger.Debug("exported list", "kind", export.Kind, "files", len(result.Files))
	return result
}
