package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/roadgraph"
)

var (
	loadGraphNodes string
	loadGraphEdges string
)

var loadGraphCmd = &cobra.Command{
	Use:   "loadgraph",
	Short: "Validate road network CSV files",
	Long:  "Parses the node and edge CSVs the serve command will load at startup and reports the network size, so bad data is caught before deployment.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		nodesPath, edgesPath := loadGraphNodes, loadGraphEdges
		if nodesPath == "" {
			nodesPath = cfg.Graph.NodesPath
		}
		if edgesPath == "" {
			edgesPath = cfg.Graph.EdgesPath
		}
		if nodesPath == "" || edgesPath == "" {
			return eris.New("pass --nodes and --edges or set HAZARD_GRAPH_NODES_PATH and HAZARD_GRAPH_EDGES_PATH")
		}

		snap, err := roadgraph.LoadCSV(nodesPath, edgesPath)
		if err != nil {
			return eris.Wrap(err, "load road graph")
		}

		zap.L().Info("road graph valid",
			zap.String("nodes_path", nodesPath),
			zap.String("edges_path", edgesPath),
			zap.Int("nodes", snap.NumNodes()),
			zap.Int("edges", snap.NumEdges()),
		)
		return nil
	},
}

func init() {
	loadGraphCmd.Flags().StringVar(&loadGraphNodes, "nodes", "", "nodes CSV path (default from config)")
	loadGraphCmd.Flags().StringVar(&loadGraphEdges, "edges", "", "edges CSV path (default from config)")
	rootCmd.AddCommand(loadGraphCmd)
}
