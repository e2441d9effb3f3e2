package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run     RunMetadata `json:"run"`
	Columns []string    `json:"columns"`
	Times   []float64   `json:"times"`
	States  [][]float64 `json:"states"`
}

// ExportJSON writes a stored run with its full trace.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	header, states, times, err := s.LoadStates(runID)
	if err != nil {
		return err
	}
	data := ExportData{
		Run:     *meta,
		Columns: header,
		Times:   times,
		States:  states,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportCSV writes the trace of a stored run as CSV.
func (s *Store) ExportCSV(w io.Writer, runID string) error {
	f, err := s.open(runID, "states.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
