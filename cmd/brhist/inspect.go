package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/brmarket-history/internal/config"
	"github.com/rickgao/brmarket-history/internal/dataset"
	"github.com/rickgao/brmarket-history/internal/job"
	"github.com/rickgao/brmarket-history/internal/store"
)

var inspectRows int

var inspectCmd = &cobra.Command{
	Use:   "inspect [dataset]",
	Short: "Show the shape and last rows of a stored dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectDataset,
}

var compactCmd = &cobra.Command{
	Use:   "compact [dataset]",
	Short: "Deduplicate and re-sort a stored dataset in place",
	Args:  cobra.ExactArgs(1),
	RunE:  compactDataset,
}

func init() {
	inspectCmd.Flags().IntVarP(&inspectRows, "rows", "n", 10, "number of trailing rows to print")
}

// lookup returns the dataset config named name, enabled or not.
func lookup(cfg *config.Config, name string) (dataset.Config, error) {
	all := *cfg
	all.Datasets.DI1.Enabled = true
	all.Datasets.TPF.Enabled = true
	all.Datasets.VNA.Enabled = true
	all.Datasets.BCB.Enabled = true

	for _, ds := range job.Datasets(&all, nil, logger) {
		if ds.Config.Name == name {
			return ds.Config, nil
		}
	}
	return dataset.Config{}, fmt.Errorf("%w: %s", job.ErrUnknownDataset, name)
}

func inspectDataset(cmd *cobra.Command, args []string) error {
	if inspectRows < 0 {
		return fmt.Errorf("--rows must be >= 0, got %d", inspectRows)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dc, err := lookup(cfg, args[0])
	if err != nil {
		return err
	}
	st, err := job.NewStore(cfg.Storage, logger)
	if err != nil {
		return err
	}

	df, exists, err := st.Load(dc.Path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !exists {
		fmt.Fprintf(out, "%s: %s does not exist\n", dc.Name, dc.Path)
		return nil
	}

	dateCols, err := fileDateColumns(dc.Path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "dataset: %s\npath:    %s\nrows:    %d\nkeys:    %v\ndates:   %v\n\n",
		dc.Name, dc.Path, df.Nrow(), dc.Keys, dateCols)

	if idx := tailRows(df.Nrow(), inspectRows); len(idx) > 0 {
		fmt.Fprintln(out, df.Subset(idx))
	}
	return nil
}

// tailRows returns the indexes of the last n of total rows.
func tailRows(total, n int) []int {
	n = max(0, min(n, total))
	idx := make([]int, 0, n)
	for i := total - n; i < total; i++ {
		idx = append(idx, i)
	}
	return idx
}

func fileDateColumns(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return store.DateColumns(f, info.Size())
}

func compactDataset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dc, err := lookup(cfg, args[0])
	if err != nil {
		return err
	}
	st, err := job.NewStore(cfg.Storage, logger)
	if err != nil {
		return err
	}

	before, after, err := dataset.NewUpdater(st, nil, logger).Compact(dc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows -> %d rows\n", dc.Name, before, after)
	return nil
}
