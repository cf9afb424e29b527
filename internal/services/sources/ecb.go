package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"MacroPull/internal/domain/models"
	xhttp "MacroPull/pkg/http"
)

const SourceECB = "ecb"

// ECB reads the ECB Data Portal SDMX REST API in its CSV rendering.
type ECB struct {
	*HTTPSourceBase
}

func NewECB(baseURL string, client *xhttp.Client) *ECB {
	return &ECB{HTTPSourceBase: NewHTTPSourceBase(SourceECB, baseURL, client)}
}

// Series returns a fetcher for the last observation of flow/key, e.g. FM / D.U2.EUR.4F.KR.DFR.LEV.
func (e *ECB) Series(flow, key string) models.Fetcher {
	path := "/" + flow + "/" + key
	query := map[string][]string{
		"lastNObservations": {"1"},
		"format":            {"csvdata"},
	}

	return models.FetcherFunc(func(ctx context.Context) (models.Observation, error) {
		var raw []byte
		if err := e.Get(ctx, path, query, &raw); err != nil {
			return models.Observation{}, err
		}
		obs, err := parseSDMXCSV(raw)
		if err != nil {
			return models.Observation{}, fmt.Errorf("ecb %s/%s: %w", flow, key, err)
		}
		return obs, nil
	})
}

// parseSDMXCSV returns the last row's OBS_VALUE and TIME_PERIOD.
func parseSDMXCSV(raw []byte) (models.Observation, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return models.Observation{}, ErrEmptyResponse
	}
	if err != nil {
		return models.Observation{}, fmt.Errorf("read csv header: %w", err)
	}

	valueIdx, periodIdx := -1, -1
	for i, col := range header {
		switch col {
		case "OBS_VALUE":
			valueIdx = i
		case "TIME_PERIOD":
			periodIdx = i
		}
	}
	if valueIdx < 0 {
		return models.Observation{}, errors.New("csv has no OBS_VALUE column")
	}

	var last []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Observation{}, fmt.Errorf("read csv row: %w", err)
		}
		last = rec
	}
	if last == nil || valueIdx >= len(last) {
		return models.Observation{}, ErrEmptyResponse
	}

	v, err := ParseValue(last[valueIdx])
	if err != nil {
		return models.Observation{}, err
	}
	obs := models.Observation{Value: v}
	if periodIdx >= 0 && periodIdx < len(last) {
		obs.Period = last[periodIdx]
	}
	return obs, nil
}
