package sources

import (
	"context"
	"fmt"

	"MacroPull/internal/domain/models"
	xhttp "MacroPull/pkg/http"
)

const SourceSCB = "scb"

// SCB reads Statistics Sweden PxWeb tables.
type SCB struct {
	*HTTPSourceBase
}

func NewSCB(baseURL string, client *xhttp.Client) *SCB {
	return &SCB{HTTPSourceBase: NewHTTPSourceBase(SourceSCB, baseURL, client)}
}

// Selection filters one PxWeb dimension.
type Selection struct {
	Code   string
	Filter string // item | top
	Values []string
}

// Item selects explicit values of a dimension.
func Item(code string, values ...string) Selection {
	return Selection{Code: code, Filter: "item", Values: values}
}

// LatestPeriod selects the most recent time period.
func LatestPeriod() Selection {
	return Selection{Code: "Tid", Filter: "top", Values: []string{"1"}}
}

type pxQuery struct {
	Query    []pxQueryItem `json:"query"`
	Response pxFormat      `json:"response"`
}

type pxQueryItem struct {
	Code      string      `json:"code"`
	Selection pxSelection `json:"selection"`
}

type pxSelection struct {
	Filter string   `json:"filter"`
	Values []string `json:"values"`
}

type pxFormat struct {
	Format string `json:"format"`
}

type pxResponse struct {
	Data []struct {
		Key    []string `json:"key"`
		Values []string `json:"values"`
	} `json:"data"`
}

// Table returns a fetcher reading the first value of the latest period of table.
func (s *SCB) Table(table string, selections ...Selection) models.Fetcher {
	q := pxQuery{Response: pxFormat{Format: "json"}}
	for _, sel := range selections {
		q.Query = append(q.Query, pxQueryItem{
			Code:      sel.Code,
			Selection: pxSelection{Filter: sel.Filter, Values: sel.Values},
		})
	}
	path := "/" + table

	return models.FetcherFunc(func(ctx context.Context) (models.Observation, error) {
		var resp pxResponse
		if err := s.PostJSON(ctx, path, q, &resp); err != nil {
			return models.Observation{}, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Values) == 0 {
			return models.Observation{}, fmt.Errorf("scb %s: %w", table, ErrEmptyResponse)
		}

		row := resp.Data[0]
		v, err := ParseValue(row.Values[0])
		if err != nil {
			return models.Observation{}, fmt.Errorf("scb %s: %w", table, err)
		}

		obs := models.Observation{Value: v}
		if n := len(row.Key); n > 0 {
			obs.Period = row.Key[n-1]
		}
		return obs, nil
	})
}
