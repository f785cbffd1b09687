package ingest

import (
	"go.uber.org/zap"

	"github.com/vnquant/marketlake/pkg/lake"
)

// Mode is the ingestion mode chosen for one asset run. FULL is chosen
// exactly once per asset, when its partition catalog is empty; every
// subsequent run is INCREMENTAL.
type Mode int

const (
	ModeFull Mode = iota
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeFull {
		return "full"
	}
	return "incremental"
}

// RunReport summarizes one asset run: the mode, the partition targeted,
// fetched vs skipped entities, rows produced, and the partitions written.
// Incremental runs that produced data also carry the output batch for the
// downstream reconciliation stage; FULL runs do not (the bulk pass already
// wrote every partition, the current one included).
type RunReport struct {
	Asset lake.AssetID
	Mode  Mode
	Key   lake.PartitionKey

	// NoOp marks a run that terminated without fetching; Reason says why.
	NoOp   bool
	Reason string

	Fetched []string
	Skipped []SkippedEntity
	Rows    int

	PartitionsWritten []lake.PartitionKey

	Batch *lake.RecordSet
}

// noOp builds a terminal no-op report.
func noOp(asset lake.AssetID, mode Mode, key lake.PartitionKey, reason string) *RunReport {
	return &RunReport{Asset: asset, Mode: mode, Key: key, NoOp: true, Reason: reason}
}

// Log writes the run summary.
func (r *RunReport) Log(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("asset", r.Asset.String()),
		zap.String("mode", r.Mode.String()),
		zap.String("partition", string(r.Key)),
	}
	if r.NoOp {
		logger.Info("ingestion no-op", append(fields, zap.String("reason", r.Reason))...)
		return
	}

	skipped := make([]string, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		skipped = append(skipped, s.Entity)
	}
	partitions := make([]string, 0, len(r.PartitionsWritten))
	for _, p := range r.PartitionsWritten {
		partitions = append(partitions, string(p))
	}
	logger.Info("ingestion run complete", append(fields,
		zap.Int("entities_fetched", len(r.Fetched)),
		zap.Strings("entities_skipped", skipped),
		zap.Int("rows", r.Rows),
		zap.Strings("partitions_written", partitions),
	)...)
}
