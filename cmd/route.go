package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/model"
)

var (
	routeFrom  string
	routeTo    string
	routeType  string
	routeAvoid []string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Plan a hazard-aware route",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		origin, err := parseLatLng(routeFrom)
		if err != nil {
			return eris.Wrap(err, "parse --from")
		}
		dest, err := parseLatLng(routeTo)
		if err != nil {
			return eris.Wrap(err, "parse --to")
		}

		avoid := make([]model.RiskLevel, 0, len(routeAvoid))
		for _, lvl := range routeAvoid {
			avoid = append(avoid, parseLevel(lvl, model.RiskLevelCritical))
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		route, err := env.Engine.PlanRoute(ctx, origin, dest, model.RouteType(routeType), avoid)
		if err != nil {
			return eris.Wrap(err, "plan route")
		}

		if route.Unsafe {
			zap.L().Warn("strict avoidance failed, route crosses hazards")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(route)
	},
}

// parseLatLng parses "lat,lng".
func parseLatLng(s string) (model.LatLng, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return model.LatLng{}, eris.Errorf("want \"lat,lng\", got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.LatLng{}, eris.Wrapf(err, "latitude %q", parts[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.LatLng{}, eris.Wrapf(err, "longitude %q", parts[1])
	}
	return model.LatLng{Lat: lat, Lng: lng}, nil
}

func init() {
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "origin as \"lat,lng\" (required)")
	routeCmd.Flags().StringVar(&routeTo, "to", "", "destination as \"lat,lng\" (required)")
	routeCmd.Flags().StringVar(&routeType, "type", "walking", "travel profile: walking, cycling, driving, emergency")
	routeCmd.Flags().StringSliceVar(&routeAvoid, "avoid", nil, "risk levels to avoid")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(routeCmd)
}
