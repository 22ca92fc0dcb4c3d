package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/aggregate"
	"github.com/sells-group/hazard-engine/internal/engine"
	"github.com/sells-group/hazard-engine/internal/hazard"
	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/neighborhood"
	"github.com/sells-group/hazard-engine/internal/planner"
	"github.com/sells-group/hazard-engine/internal/risk"
	"github.com/sells-group/hazard-engine/internal/roadgraph"
	"github.com/sells-group/hazard-engine/internal/store"
	"github.com/sells-group/hazard-engine/internal/vision"
)

// engineEnv holds the initialized store and engine needed by the serve,
// import, assess, and route commands.
type engineEnv struct {
	Store  store.Store
	Engine *engine.Engine
}

// Close releases resources held by the engine environment.
func (ee *engineEnv) Close() {
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

// initEngine sets up the store, loads supporting data, builds all engine
// components, and rebuilds state from persistence. Callers should defer
// env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := cfg.Validate("engine"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	scorer, err := initScorer()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := hazard.NewRegistry(hazard.Config{
		BlockingLevel: parseLevel(cfg.Hazard.BlockingLevel, model.RiskLevelHigh),
		Expiry:        time.Duration(cfg.Hazard.ExpiryDays) * 24 * time.Hour,
	})

	graph, err := initGraph()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	zones, err := initZones()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	plannerCfg := planner.DefaultConfig()
	plannerCfg.MaxSnapM = cfg.Planner.MaxSnapM
	plannerCfg.HazardBufferM = cfg.Planner.HazardBufferM
	plannerCfg.BlockAtLevel = parseLevel(cfg.Planner.BlockAtLevel, model.RiskLevelCritical)
	plannerCfg.MaxNodes = cfg.Planner.MaxNodes
	plannerCfg.Timeout = cfg.Planner.Timeout

	aggCfg := aggregate.DefaultConfig()
	aggCfg.AlertWindow = time.Duration(cfg.Alerts.VelocityWindowDays) * 24 * time.Hour
	aggCfg.AlertMinIssues = cfg.Alerts.MinRecentIssues
	aggCfg.AlertMinAvgScore = cfg.Alerts.MinAvgScore

	visionClient := vision.New(vision.Config{
		BaseURL:     cfg.Vision.BaseURL,
		Timeout:     cfg.Vision.Timeout,
		MaxAttempts: cfg.Vision.MaxAttempts,
	})
	if visionClient.Enabled() {
		zap.L().Info("vision collaborator enabled", zap.String("base_url", cfg.Vision.BaseURL))
	} else {
		zap.L().Debug("HAZARD_VISION_BASE_URL not set, vision analysis disabled")
	}

	bounds := model.BBox{
		MinLat: cfg.Bounds.MinLat,
		MinLng: cfg.Bounds.MinLng,
		MaxLat: cfg.Bounds.MaxLat,
		MaxLng: cfg.Bounds.MaxLng,
	}

	e := engine.New(
		engine.Config{Bounds: bounds},
		st,
		scorer,
		registry,
		aggregate.New(aggCfg, scorer.LevelFor),
		aggregate.NewCache(cfg.Cluster.CacheEntries, cfg.Cluster.CacheTTL),
		graph,
		planner.New(graph, registry, plannerCfg),
		zones,
		visionClient,
	)

	if err := e.Load(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &engineEnv{Store: st, Engine: e}, nil
}

// initStore opens the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("postgres driver requires HAZARD_STORE_DATABASE_URL")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initScorer builds the risk scorer from defaults plus config overrides.
func initScorer() (*risk.Scorer, error) {
	riskCfg := risk.DefaultConfig()
	if cfg.Risk.DensityRadiusM > 0 {
		riskCfg.DensityRadiusM = cfg.Risk.DensityRadiusM
	}
	if cfg.Risk.DecayHalfLifeHrs > 0 {
		riskCfg.Decay.HalfLifeHours = cfg.Risk.DecayHalfLifeHrs
	}
	if cfg.Risk.DecayFloor > 0 {
		riskCfg.Decay.Floor = cfg.Risk.DecayFloor
	}
	if cfg.Risk.FallbackSeverity > 0 {
		riskCfg.FallbackSeverity = cfg.Risk.FallbackSeverity
	}
	if cfg.Risk.WeightsFile != "" {
		merged, err := risk.LoadWeightsFile(riskCfg, cfg.Risk.WeightsFile)
		if err != nil {
			return nil, err
		}
		riskCfg = merged
		zap.L().Info("category weights loaded", zap.String("file", cfg.Risk.WeightsFile))
	}
	return risk.NewScorer(riskCfg)
}

// initGraph loads the road network when paths are configured; otherwise the
// engine starts with an empty graph and routing returns errors until a
// snapshot is swapped in.
func initGraph() (*roadgraph.Graph, error) {
	if cfg.Graph.NodesPath == "" || cfg.Graph.EdgesPath == "" {
		zap.L().Warn("road graph paths not configured, route planning unavailable")
		return roadgraph.NewGraph(roadgraph.NewSnapshot(nil, nil, false)), nil
	}
	snap, err := roadgraph.LoadCSV(cfg.Graph.NodesPath, cfg.Graph.EdgesPath)
	if err != nil {
		return nil, eris.Wrap(err, "load road graph")
	}
	zap.L().Info("road graph loaded",
		zap.Int("nodes", snap.NumNodes()),
		zap.Int("edges", snap.NumEdges()),
	)
	return roadgraph.NewGraph(snap), nil
}

// initZones loads neighborhood boundaries when a shapefile is configured.
func initZones() (*neighborhood.Zones, error) {
	if cfg.Zones.ShapefilePath == "" {
		zap.L().Debug("zones shapefile not configured, neighborhood aggregates use grid fallback")
		return nil, nil
	}
	zones, err := neighborhood.LoadShapefile(cfg.Zones.ShapefilePath, cfg.Zones.NameField)
	if err != nil {
		return nil, eris.Wrap(err, "load zones")
	}
	zap.L().Info("neighborhood zones loaded", zap.Int("zones", zones.Len()))
	return zones, nil
}

// parseLevel maps a config string to a risk level, falling back when the
// value is unrecognized.
func parseLevel(s string, fallback model.RiskLevel) model.RiskLevel {
	switch model.RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case model.RiskLevelLow:
		return model.RiskLevelLow
	case model.RiskLevelMedium:
		return model.RiskLevelMedium
	case model.RiskLevelHigh:
		return model.RiskLevelHigh
	case model.RiskLevelCritical:
		return model.RiskLevelCritical
	default:
		return fallback
	}
}
