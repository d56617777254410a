package models

import "time"

// ListEntry is a membership item with its catalog title, when one could be resolved.
type ListEntry struct {
	Item  MembershipItem `json:"item"`
	Title *Title         `json:"title,omitempty"`
}

// DisplayName is the resolved title name, or the item key when the title is unknown.
func (e ListEntry) DisplayName() string {
	if e.Title != nil && e.Title.Name != "" {
		return e.Title.Name
	}
	return e.Item.Key().String()
}

// ListExport is a snapshot of one membership set prepared for export.
type ListExport struct {
	Kind       string      `json:"kind"`
	Name       string      `json:"name"`
	ExportedAt time.Time   `json:"exported_at"`
	Entries    []ListEntry `json:"entries"`
}

// ListExportResult is the outcome of writing one [ListExport].
type ListExportResult struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Files   []string `json:"files"`
	Success bool     `json:"success"`
	Error   error    `json:"-"`
}

// ExportResult summarizes an export of several lists.
type ExportResult struct {
	Format          string             `json:"format"`
	OutputDirectory string             `json:"output_directory"`
	Total           int                `json:"total"`
	Successful      int                `json:"successful"`
	Failed          int                `json:"failed"`
	Results         []ListExportResult `json:"results"`
	ManifestPath    string             `json:"-"`
}
