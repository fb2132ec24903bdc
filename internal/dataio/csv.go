// Package dataio reads engine inputs from CSV files.
//
// Dates are ISO formatted (2006-01-02). An empty price cell is a missing
// observation.
package dataio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/allocation-engine/internal/domain"
)

// DateLayout is the date format of every CSV input
const DateLayout = "2006-01-02"

// ReadPrices parses a price matrix with header "date,<asset>,<asset>...".
func ReadPrices(r io.Reader) (*domain.PriceMatrix, error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty price file", domain.ErrInvalidInput)
	}
	header := rows[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: price header needs a date column and at least one asset", domain.ErrInvalidInput)
	}

	m := domain.NewPriceMatrix(make([]time.Time, 0, len(rows)-1))
	assets := header[1:]
	for _, asset := range assets {
		if _, dup := m.Data[asset]; dup || asset == "" {
			return nil, fmt.Errorf("%w: duplicate or empty asset column %q", domain.ErrInvalidInput, asset)
		}
		m.Data[asset] = make([]float64, 0, len(rows)-1)
	}

	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", domain.ErrInvalidInput, line, len(row), len(header))
		}
		date, err := parseDate(row[0], line)
		if err != nil {
			return nil, err
		}
		m.Dates = append(m.Dates, date)
		for j, asset := range assets {
			cell := strings.TrimSpace(row[j+1])
			if cell == "" {
				m.Data[asset] = append(m.Data[asset], math.NaN())
				continue
			}
			p, err := parseFloat(cell, line)
			if err != nil {
				return nil, err
			}
			m.Data[asset] = append(m.Data[asset], p)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadValues parses a value series with header "date,value".
func ReadValues(r io.Reader) (domain.ValueSeries, error) {
	var s domain.ValueSeries
	err := readPairs(r, func(key string, v float64, line int) error {
		date, err := parseDate(key, line)
		if err != nil {
			return err
		}
		s.Dates = append(s.Dates, date)
		s.Values = append(s.Values, v)
		return nil
	})
	if err != nil {
		return domain.ValueSeries{}, err
	}
	if err := s.Validate(); err != nil {
		return domain.ValueSeries{}, err
	}
	return s, nil
}

// ReadCashFlows parses cash flows with header "date,amount". Positive amounts
// are contributions.
func ReadCashFlows(r io.Reader) ([]domain.CashFlowEvent, error) {
	var flows []domain.CashFlowEvent
	err := readPairs(r, func(key string, v float64, line int) error {
		date, err := parseDate(key, line)
		if err != nil {
			return err
		}
		flows = append(flows, domain.CashFlowEvent{Date: date, Amount: v})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flows, nil
}

// ReadMarketCaps parses market caps with header "asset,cap".
func ReadMarketCaps(r io.Reader) (domain.MarketCapVector, error) {
	caps := make(domain.MarketCapVector)
	err := readPairs(r, func(asset string, v float64, line int) error {
		if _, dup := caps[asset]; dup {
			return fmt.Errorf("%w: duplicate asset %q on line %d", domain.ErrInvalidInput, asset, line)
		}
		caps[asset] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := caps.Validate(); err != nil {
		return nil, err
	}
	return caps, nil
}

func readAll(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return rows, nil
}

// readPairs walks a two-column file, skipping the header row
func readPairs(r io.Reader, fn func(key string, v float64, line int) error) error {
	rows, err := readAll(r)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: empty file", domain.ErrInvalidInput)
	}
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != 2 {
			return fmt.Errorf("%w: line %d has %d fields, want 2", domain.ErrInvalidInput, line, len(row))
		}
		v, err := parseFloat(strings.TrimSpace(row[1]), line)
		if err != nil {
			return err
		}
		if err := fn(strings.TrimSpace(row[0]), v, line); err != nil {
			return err
		}
	}
	return nil
}

func parseDate(s string, line int) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q on line %d", domain.ErrInvalidInput, s, line)
	}
	return d, nil
}

// parseFloat accepts finite numbers only; missing prices are empty cells.
func parseFloat(s string, line int) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q on line %d", domain.ErrInvalidInput, s, line)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite number %q on line %d", domain.ErrInvalidInput, s, line)
	}
	return v, nil
}
