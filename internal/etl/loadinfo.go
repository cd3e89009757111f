package etl

import (
	"fmt"
	"strings"
	"time"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

const StatusLoaded = "loaded"

// TableLoad summarizes what one run wrote to a table.
type TableLoad struct {
	Table            string                  `json:"table"`
	Rows             int                     `json:"rows"`
	Jobs             int                     `json:"jobs"`
	WriteDisposition models.WriteDisposition `json:"write_disposition"`
	Status           string                  `json:"status"`
}

// LoadInfo is the outcome of a successful pipeline run.
type LoadInfo struct {
	Pipeline    string      `json:"pipeline_name"`
	Destination string      `json:"destination_name"`
	Dataset     string      `json:"dataset_name"`
	LoadID      string      `json:"load_id"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Tables      []TableLoad `json:"tables"`
}

// Rows returns the rows loaded into table, or 0.
func (l *LoadInfo) Rows(table string) int {
	for _, t := range l.Tables {
		if t.Table == table {
			return t.Rows
		}
	}
	return 0
}

func (l *LoadInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline %s load step completed in %.2f seconds\n",
		l.Pipeline, l.FinishedAt.Sub(l.StartedAt).Seconds())
	fmt.Fprintf(&b, "1 load package(s) were loaded to destination %s and into dataset %s\n",
		l.Destination, l.Dataset)
	fmt.Fprintf(&b, "Load package %s is LOADED and contains no failed jobs", l.LoadID)
	for _, t := range l.Tables {
		fmt.Fprintf(&b, "\n  %s: %d row(s) in %d job(s), %s, %s", t.Table, t.Rows, t.Jobs, t.WriteDisposition, t.Status)
	}
	return b.String()
}
