package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/neighborhood"
)

var loadZonesPath string

var loadZonesCmd = &cobra.Command{
	Use:   "loadzones",
	Short: "Validate a neighborhood boundary shapefile",
	Long:  "Parses the shapefile the serve command will load at startup and reports the zones found, so bad data is caught before deployment.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := loadZonesPath
		if path == "" {
			path = cfg.Zones.ShapefilePath
		}
		if path == "" {
			return eris.New("pass --shapefile or set HAZARD_ZONES_SHAPEFILE_PATH")
		}

		zones, err := neighborhood.LoadShapefile(path, cfg.Zones.NameField)
		if err != nil {
			return eris.Wrap(err, "load zones")
		}

		for _, z := range zones.All() {
			zap.L().Debug("zone loaded",
				zap.String("name", z.Name),
				zap.Int("polygons", len(z.Polygons)),
			)
		}
		zap.L().Info("shapefile valid",
			zap.String("path", path),
			zap.Int("zones", zones.Len()),
		)
		return nil
	},
}

func init() {
	loadZonesCmd.Flags().StringVar(&loadZonesPath, "shapefile", "", "shapefile path (default from config)")
	rootCmd.AddCommand(loadZonesCmd)
}
