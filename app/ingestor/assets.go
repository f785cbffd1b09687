package ingestor

import (
	"net/url"

	"github.com/vnquant/marketlake/pkg/ingest"
	"github.com/vnquant/marketlake/pkg/lake"
)

// indexTickers are the market indexes tracked alongside listed stocks.
// They trade on index schedules rather than listing activity, so they are
// exempt from inactivity pruning and ordered last in every worklist.
var indexTickers = []string{"HNX30", "UPCOMINDEX", "VN100", "VN30", "VNINDEX"}

const (
	// warehouseSchema is the Postgres schema every reconciled table lives in.
	warehouseSchema = "market"

	priceActivityLookback  = 10
	reportActivityLookback = 4
)

// Asset binds one ingested dataset to its source endpoint and, when the
// dataset is reconciled downstream, its warehouse table and natural key.
// Assets without a table stay lake-only.
type Asset struct {
	Spec      ingest.AssetSpec
	Source    ingest.Source
	Table     string
	UniqueKey []string
}

// assets declares every dataset the service ingests, in run order.
func (a *App) assets() []Asset {
	universe := a.Client

	quarterly := func(table, statement string) Asset {
		return Asset{
			Spec: ingest.AssetSpec{
				Asset:         lake.NewAssetID("bronze", table),
				Partitioning:  ingest.Quarterly,
				EntityColumn:  "ticker",
				YearColumn:    "year",
				QuarterColumn: "quarter",
				Lookback:      reportActivityLookback,
				Universe:      universe,
			},
			Source:    a.Client.Dataset("/stocks/financials", "ticker", url.Values{"statement": {statement}}),
			Table:     table,
			UniqueKey: []string{"ticker", "year", "quarter"},
		}
	}

	return []Asset{
		{
			Spec: ingest.AssetSpec{
				Asset:         lake.NewAssetID("bronze", "prices", "bronze_prices_1d"),
				Partitioning:  ingest.Daily,
				EntityColumn:  "ticker",
				DateColumn:    "date",
				Lookback:      priceActivityLookback,
				HistoryStart:  lake.PartitionKey(a.Config.HistoryStart),
				AlwaysInclude: indexTickers,
				Universe:      universe,
			},
			Source:    a.Client.Dataset("/stocks/prices", "ticker", url.Values{"interval": {"1d"}}),
			Table:     "prices_1d",
			UniqueKey: []string{"ticker", "date"},
		},
		quarterly("income_statement", "income"),
		quarterly("balance_sheet", "balance"),
		quarterly("cash_flow", "cashflow"),
		{
			Spec: ingest.AssetSpec{
				Asset:        lake.NewAssetID("bronze", "company_profile"),
				Partitioning: ingest.Static,
				EntityColumn: "ticker",
				Universe:     universe,
			},
			Source:    a.Client.Dataset("/stocks/profile", "ticker", nil),
			Table:     "company_profile",
			UniqueKey: []string{"ticker"},
		},
		{
			Spec: ingest.AssetSpec{
				Asset:        lake.NewAssetID("bronze", "company_events"),
				Partitioning: ingest.Static,
				EntityColumn: "ticker",
				Universe:     universe,
			},
			Source: a.Client.Dataset("/stocks/events", "ticker", nil),
		},
		{
			Spec: ingest.AssetSpec{
				Asset:        lake.NewAssetID("bronze", "news"),
				Partitioning: ingest.Daily,
				EntityColumn: "ticker",
				DateColumn:   "date",
				Lookback:     priceActivityLookback,
				HistoryStart: lake.PartitionKey(a.Config.HistoryStart),
				Universe:     universe,
			},
			Source: a.Client.Dataset("/stocks/news", "ticker", nil),
		},
	}
}
