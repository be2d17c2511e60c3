package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/turf-db/turf"
)

// benchRecord is the toy value type turfbench writes and queries; it
// exists purely to exercise the engine end to end.
type benchRecord struct {
	ID       string `json:"id"`
	Seq      int64  `json:"seq"`
	Payload  string `json:"payload"`
	Archived bool   `json:"archived"`
}

func runBenchCommand() *cobra.Command {
	var (
		dbPath  string
		records int
		readers int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Write a synthetic workload and run concurrent reads against it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if dbPath == "" {
				tmp, err := os.MkdirTemp("", "turfbench-*")
				if err != nil {
					return err
				}
				dbPath = filepath.Join(tmp, "bench.db")
			}

			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			registry := prometheus.NewRegistry()

			container := turf.NewCollectionsContainer()
			seqIndex := turf.Int64Property[benchRecord]("seq", func(v benchRecord) int64 { return v.Seq })
			activeIndex := &turf.Index[benchRecord]{
				Name:    "by_seq",
				Version: 1,
				Properties: []turf.IndexedPropertyAny[benchRecord]{seqIndex.Any()},
			}

			coll := &turf.Collection[benchRecord]{
				Name:          "records",
				SchemaVersion: 1,
				Serialize: func(v benchRecord) ([]byte, error) { return json.Marshal(v) },
				Deserialize: func(data []byte) (benchRecord, bool) {
					var v benchRecord
					if err := json.Unmarshal(data, &v); err != nil {
						return benchRecord{}, false
					}
					return v, true
				},
				Indexes: []*turf.Index[benchRecord]{activeIndex},
			}

			handle, err := turf.RegisterCollection(container, coll)
			if err != nil {
				return fmt.Errorf("register collection: %w", err)
			}

			db, err := turf.Open(dbPath, container, turf.DatabaseOptions{
				Logger:          &logger,
				MetricsRegistry: registry,
			})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			writer := db.NewConnection()
			start := time.Now()
			_, err = turf.ReadWrite(ctx, writer, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
				view, err := handle.InWrite(tx)
				if err != nil {
					return struct{}{}, err
				}
				for i := 0; i < records; i++ {
					rec := benchRecord{ID: uuid.NewString(), Seq: int64(i), Payload: fmt.Sprintf("payload-%d", i)}
					if err := view.Set(rec.ID, rec); err != nil {
						return struct{}{}, err
					}
				}
				return struct{}{}, nil
			})
			if err != nil {
				return fmt.Errorf("write workload: %w", err)
			}
			cmd.Printf("wrote %d records in %s\n", records, time.Since(start))

			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < readers; i++ {
				threshold := int64(i * records / readers)
				g.Go(func() error {
					reader := db.NewConnection()
					defer reader.Close()
					count, err := turf.ReadOnly(gctx, reader, func(tx *turf.ReadTransaction) (uint64, error) {
						view, err := handle.In(tx)
						if err != nil {
							return 0, err
						}
						return view.CountValues(activeIndex, turf.GreaterThan[benchRecord](seqIndex, threshold))
					})
					if err != nil {
						return err
					}
					cmd.Printf("reader threshold=%d matched=%d\n", threshold, count)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("read workload: %w", err)
			}

			if metricsAddr != "" {
				http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				cmd.Printf("serving metrics on %s/metrics\n", metricsAddr)
				return http.ListenAndServe(metricsAddr, nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "path", "", "Database file path (defaults to a temp file)")
	cmd.Flags().IntVar(&records, "records", 1000, "Number of records to write")
	cmd.Flags().IntVar(&readers, "readers", 4, "Number of concurrent reader connections")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address instead of exiting")

	return cmd
}
