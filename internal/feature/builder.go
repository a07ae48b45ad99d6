package feature

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"NextClose/internal/calculator"
	"NextClose/internal/model"
)

// ErrDatasetBuild is returned when the loader could not produce a table.
// Nothing downstream can run without one.
var ErrDatasetBuild = errors.New("dataset creation failed")

// DefaultPeriods is the number of lags per base column.
const DefaultPeriods = 12

// RawColumns are dropped once lags exist. The placeholder row carries zeros
// in them, which must not reach the model as real inputs.
var RawColumns = []string{
	model.ColOpen, model.ColHigh, model.ColLow, model.ColAdjClose,
	model.ColValue, model.ColVolume, model.ColCount, model.ColYesterday,
}

// Dataset is the loader stage the builder depends on.
type Dataset interface {
	Build(ctx context.Context) (*model.Frame, bool)
	Ticker() string
}

// Builder turns a price bar table into the model's feature table.
type Builder struct {
	dataset Dataset
	periods int
}

// NewBuilder creates a Builder; periods <= 0 means DefaultPeriods.
func NewBuilder(dataset Dataset, periods int) *Builder {
	if periods <= 0 {
		periods = DefaultPeriods
	}
	return &Builder{dataset: dataset, periods: periods}
}

// Ticker returns the instrument the builder works on.
func (b *Builder) Ticker() string { return b.dataset.Ticker() }

// Periods returns the number of lags per base column.
func (b *Builder) Periods() int { return b.periods }

// CreateFeatures builds the dataset and extends it with lag features.
func (b *Builder) CreateFeatures(ctx context.Context) (*model.Frame, error) {
	table, err := b.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}
	return b.Features(table)
}

// LoadDataset runs the loader. A failed build wraps ErrDatasetBuild.
func (b *Builder) LoadDataset(ctx context.Context) (*model.Frame, error) {
	table, ok := b.dataset.Build(ctx)
	if !ok {
		return nil, fmt.Errorf("%s: %w", b.dataset.Ticker(), ErrDatasetBuild)
	}
	return table, nil
}

// Features extends a loaded table with the builder's lag periods.
func (b *Builder) Features(table *model.Frame) (*model.Frame, error) {
	features, err := Extend(table, b.periods)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("ticker", b.dataset.Ticker()).Msgf("feature tail:\n%s", features.Tail(3))
	log.Info().
		Str("ticker", b.dataset.Ticker()).
		Int("rows", features.Len()).
		Int("columns", len(features.Columns())).
		Msg("features created")
	return features, nil
}

// Extend adds lag columns, zero-fills missing values and drops the raw
// price columns. The input table is not modified.
func Extend(table *model.Frame, periods int) (*model.Frame, error) {
	lagged, err := calculator.AddLags(table, periods)
	if err != nil {
		return nil, fmt.Errorf("create lag features: %w", err)
	}
	return lagged.FillNaN(0).Drop(RawColumns...), nil
}
