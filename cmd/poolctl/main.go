// Command poolctl runs one consolidation call over local files and prints the
// result as JSON.
//
//	poolctl -shipments loads.csv -carriers fleet.yaml -mode plan -seed 7
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"freightpool/internal/config"
	"freightpool/internal/engine"
	"freightpool/internal/integrations"
	"freightpool/internal/integrations/csvsource"
	"freightpool/internal/model"
	"freightpool/internal/store"
)

type options struct {
	shipments string
	carriers  string
	mode      string
	seed      int64
	config    string
	groups    string
	record    string
}

func main() {
	var o options
	flag.StringVar(&o.shipments, "shipments", "", "CSV file of shipments (required)")
	flag.StringVar(&o.carriers, "carriers", "", "YAML fleet file")
	flag.StringVar(&o.mode, "mode", engine.OpPlan, "match|improve|solve|plan")
	flag.Int64Var(&o.seed, "seed", 1, "random seed for improve and plan")
	flag.StringVar(&o.config, "config", os.Getenv("CONFIG_FILE"), "YAML config file")
	flag.StringVar(&o.groups, "groups", "", "initial groups for improve, e.g. a,b;c")
	flag.StringVar(&o.record, "record", "", "SQLite file to record the run in")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to read .env")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, o, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, o options, out io.Writer) error {
	if o.shipments == "" {
		return errors.New("-shipments is required")
	}
	cfg, err := config.Load(o.config)
	if err != nil {
		return err
	}
	// logs go to stderr so stdout stays valid JSON
	log.SetOutput(os.Stderr)
	if err := cfg.Logging.Apply(log.StandardLogger()); err != nil {
		return err
	}

	var src integrations.ShipmentSource = csvsource.Adapter{Path: o.shipments}
	batch, err := src.FetchShipments(ctx)
	if err != nil {
		return fmt.Errorf("%s source: %w", src.Name(), err)
	}
	for _, re := range batch.Rejected {
		log.WithField("source", src.Name()).Warn(re.Error())
	}
	var carriers []model.Carrier
	if o.carriers != "" {
		f, err := os.Open(o.carriers)
		if err != nil {
			return err
		}
		carriers, err = integrations.LoadFleet(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", o.carriers, err)
		}
	}

	eng, err := engine.New(cfg.Optimizer)
	if err != nil {
		return err
	}
	ships := batch.Shipments
	start := time.Now()
	var result any
	switch o.mode {
	case engine.OpMatch:
		result, err = eng.MatchPools(ctx, ships, carriers, cfg.Optimizer.Pooling)
	case engine.OpImprove:
		result, err = eng.ImproveAssignment(ctx, parseGroups(o.groups), ships, carriers, cfg.Optimizer.ALNS, o.seed)
	case engine.OpSolve:
		result, err = eng.SolveLargeInstance(ctx, ships, carriers, cfg.Optimizer.ColGen)
	case engine.OpPlan:
		result, err = eng.Plan(ctx, ships, carriers, o.seed)
	default:
		return fmt.Errorf("unknown mode %q", o.mode)
	}
	if err != nil {
		return err
	}

	doc, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if o.record != "" {
		if err := record(ctx, o, len(ships), time.Since(start), doc); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	_, err = fmt.Fprintln(out, string(doc))
	return err
}

func record(ctx context.Context, o options, shipments int, elapsed time.Duration, doc []byte) error {
	s, err := store.Open("sqlite", o.record)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	var summary struct {
		Status string        `json:"status"`
		Routes []model.Route `json:"routes"`
	}
	_ = json.Unmarshal(doc, &summary)
	var cost float64
	for _, r := range summary.Routes {
		cost += r.Cost
	}
	return s.SaveRun(ctx, store.Run{
		ID:        uuid.New().String(),
		Operation: o.mode,
		Status:    summary.Status,
		Shipments: shipments,
		Routes:    len(summary.Routes),
		TotalCost: cost,
		Seed:      o.seed,
		ElapsedMs: elapsed.Milliseconds(),
		CreatedAt: time.Now().UTC(),
		Result:    doc,
	})
}

// parseGroups reads "a,b;c" as [[a b] [c]].
func parseGroups(v string) [][]string {
	var out [][]string
	for _, g := range strings.Split(v, ";") {
		var ids []string
		for _, id := range strings.Split(g, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			out = append(out, ids)
		}
	}
	return out
}
