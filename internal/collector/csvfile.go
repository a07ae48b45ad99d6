package collector

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"NextClose/internal/model"
)

// CSVFetcher reads <Dir>/<SYMBOL>.csv files for offline runs. The header
// row names the columns (date, open, high, low, adjClose, value, volume,
// count, yesterday, close); unknown columns are ignored and absent ones are 0.
type CSVFetcher struct {
	Dir string
}

func NewCSVFetcher(dir string) *CSVFetcher { return &CSVFetcher{Dir: dir} }

func (f *CSVFetcher) Name() string { return "csv" }

// Download ignores adjust: files hold whatever series they were exported with.
func (f *CSVFetcher) Download(_ context.Context, symbols []string, _ bool) (map[string][]model.RawBar, error) {
	out := make(map[string][]model.RawBar, len(symbols))
	for _, s := range symbols {
		bars, err := f.readFile(filepath.Join(f.Dir, s+".csv"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s, err)
		}
		out[s] = bars
	}
	return out, nil
}

func (f *CSVFetcher) readFile(path string) ([]model.RawBar, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	if _, ok := pos[model.ColDate]; !ok {
		return nil, fmt.Errorf("missing %q column", model.ColDate)
	}

	var bars []model.RawBar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		num := func(name string) (float64, error) {
			i, ok := pos[name]
			if !ok || i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
				return 0, nil
			}
			return strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		}
		bar := model.RawBar{Date: strings.TrimSpace(rec[pos[model.ColDate]])}
		for _, fld := range []struct {
			name string
			dst  *float64
		}{
			{model.ColOpen, &bar.Open},
			{model.ColHigh, &bar.High},
			{model.ColLow, &bar.Low},
			{model.ColAdjClose, &bar.AdjClose},
			{model.ColValue, &bar.Value},
			{model.ColVolume, &bar.Volume},
			{model.ColCount, &bar.Count},
			{model.ColYesterday, &bar.Yesterday},
			{model.ColClose, &bar.Close},
		} {
			v, err := num(fld.name)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, fld.name, err)
			}
			*fld.dst = v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
