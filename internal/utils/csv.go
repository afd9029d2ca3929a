package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"chartdesk/internal/domain"
)

var candleHeader = []string{"time", "open", "high", "low", "close"}

// WriteCandlesToCSV writes candles with epoch-second times to filename.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteCandles(file, candles)
}

// WriteCandles encodes candles as CSV with a header row.
func WriteCandles(w io.Writer, candles []domain.Candle) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(candleHeader); err != nil {
		return err
	}
	for _, c := range candles {
		writer.Write([]string{
			strconv.FormatInt(c.Time, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
		})
	}
	writer.Flush()
	return writer.Error()
}

// ReadCandlesFromCSV loads a file written by WriteCandlesToCSV.
func ReadCandlesFromCSV(filename string) ([]domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCandles(file)
}

// ReadCandles decodes CSV produced by WriteCandles. The header row is optional.
func ReadCandles(r io.Reader) ([]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(candleHeader)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) > 0 && records[0][0] == candleHeader[0] {
		records = records[1:]
	}

	candles := make([]domain.Candle, 0, len(records))
	for i, rec := range records {
		var c domain.Candle
		if c.Time, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
			return nil, fmt.Errorf("row %d: time: %w", i+1, err)
		}
		vals := [4]float64{}
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(rec[j+1], 64); err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i+1, candleHeader[j+1], err)
			}
		}
		c.Open, c.High, c.Low, c.Close = vals[0], vals[1], vals[2], vals[3]
		candles = append(candles, c)
	}
	return candles, nil
}
