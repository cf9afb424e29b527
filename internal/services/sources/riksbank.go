package sources

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"MacroPull/internal/domain/models"
	xhttp "MacroPull/pkg/http"
)

const SourceRiksbank = "riksbank"

// Riksbank reads the SWEA observations API. It enforces a per-client quota,
// so its series are scheduled as one rate-limited chain.
type Riksbank struct {
	*HTTPSourceBase
}

func NewRiksbank(baseURL string, client *xhttp.Client) *Riksbank {
	return &Riksbank{HTTPSourceBase: NewHTTPSourceBase(SourceRiksbank, baseURL, client)}
}

type sweaObservation struct {
	Date  string              `json:"date"`
	Value decimal.NullDecimal `json:"value"`
}

// Series returns a fetcher for the latest observation of series. With invert
// the reciprocal is returned, e.g. EUR per USD from the USD per EUR series.
func (r *Riksbank) Series(series string, invert bool) models.Fetcher {
	path := "/Observations/Latest/" + series

	return models.FetcherFunc(func(ctx context.Context) (models.Observation, error) {
		var obs sweaObservation
		if err := r.Get(ctx, path, nil, &obs); err != nil {
			return models.Observation{}, err
		}
		if !obs.Value.Valid {
			return models.Observation{}, fmt.Errorf("riksbank %s: %w", series, ErrEmptyResponse)
		}

		v := obs.Value.Decimal
		if invert {
			if v.IsZero() {
				return models.Observation{}, fmt.Errorf("riksbank %s: cannot invert zero", series)
			}
			v = decimal.NewFromInt(1).DivRound(v, 6)
		}
		return models.Observation{Value: v.InexactFloat64(), Period: obs.Date}, nil
	})
}
