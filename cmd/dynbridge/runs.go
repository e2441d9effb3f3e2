package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/dynbridge/internal/analysis"
	"github.com/san-kum/dynbridge/internal/export"
	"github.com/san-kum/dynbridge/internal/storage"
	"github.com/spf13/cobra"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENE\tTIME\tDURATION\tDT\tSOLVER\tSTEPS\tSTATUS")

	for _, run := range runs {
		status := "ok"
		if run.Halted {
			status = "halted"
		} else if len(run.Warnings) > 0 {
			status = fmt.Sprintf("%d warnings", len(run.Warnings))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%d\t%s\n",
			run.ID,
			run.Scene,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Solver,
			run.Steps,
			status,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	header, states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scene: %s\n", meta.Scene)
	fmt.Printf("samples: %d (%.2fs)\n\n", len(states), times[len(times)-1])

	selected, err := selectColumns(header, columns)
	if err != nil {
		return err
	}

	for _, idx := range selected {
		data := make([]float64, len(states))
		for i := range states {
			if idx < len(states[i]) {
				data[i] = states[i][idx]
			}
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(header[idx]+" vs time"),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

const (
	maxPlots  = 6
	settleTol = 1e-3
)

// selectColumns maps requested column names to indices; with none requested
// it picks the first few.
func selectColumns(header, want []string) ([]int, error) {
	if len(want) == 0 {
		n := len(header)
		if n > maxPlots {
			n = maxPlots
		}
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	out := make([]int, 0, len(want))
	for _, w := range want {
		i, ok := index[w]
		if !ok {
			return nil, fmt.Errorf("unknown column %q (available: %s)", w, strings.Join(header, ", "))
		}
		out = append(out, i)
	}
	return out, nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportJSON(os.Stdout, args[0])
}

func exportCSV(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportCSV(os.Stdout, args[0])
}

func exportSVG(cmd *cobra.Command, args []string) error {
	header, states, _, err := storage.New(dataDir).LoadStates(args[0])
	if err != nil {
		return err
	}
	paths := export.BodyPaths(header, states)
	if len(paths) == 0 {
		return fmt.Errorf("run %s has no body trajectories", args[0])
	}

	out := io.Writer(os.Stdout)
	if svgOut != "" {
		f, err := os.Create(svgOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return export.TrajectorySVG(out, paths, svgWidth, svgHeight)
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID, column := args[0], args[1]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	header, states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) < 2 {
		return fmt.Errorf("no data")
	}
	data, err := analysis.Column(header, states, column)
	if err != nil {
		return err
	}

	fmt.Printf("analysis: %s\n", meta.ID)
	fmt.Printf("scene: %s  column: %s\n\n", meta.Scene, column)

	sum := analysis.Summarize(data, times, settleTol)
	fmt.Printf("mean %.6f  std %.6f  min %.6f  max %.6f  final %.6f\n", sum.Mean, sum.Std, sum.Min, sum.Max, sum.Final)
	if sum.Settled {
		fmt.Printf("settled at t=%.3fs\n\n", sum.SettleTime)
	} else {
		fmt.Println("not settled")
		fmt.Println()
	}

	_, ps := analysis.Spectrum(data, meta.Dt)
	if len(ps) > 1 {
		graph := asciigraph.Plot(ps[1:],
			asciigraph.Height(15),
			asciigraph.Width(80),
			asciigraph.Caption("power spectrum ("+column+")"),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	freq, _ := analysis.DominantFrequency(data, meta.Dt)
	fmt.Printf("dominant frequency: %.3f hz\n", freq)
	if freq > 0 {
		fmt.Printf("period: %.3f s\n", 1.0/freq)
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	header, states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	x, y := xAxis, yAxis
	if x == "" || y == "" {
		if len(header) < 2 {
			return fmt.Errorf("run %s has fewer than two columns", runID)
		}
		x, y = header[0], header[1]
	}
	p, err := analysis.NewPortrait(header, states, x, y)
	if err != nil {
		return err
	}

	fmt.Printf("%s vs %s\n\n", p.YLabel, p.XLabel)
	fmt.Print(p.ASCII(70, 24))
	return nil
}
