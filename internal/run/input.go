package run

import "time"

// Input records one source file consumed by a run.
type Input struct {
	Role     string    `json:"role"`
	Path     string    `json:"path"`
	Rows     int       `json:"rows"`
	Columns  int       `json:"columns"`
	Dropped  int       `json:"duplicates_dropped"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
