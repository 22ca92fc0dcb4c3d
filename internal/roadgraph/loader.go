package roadgraph

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/model"
)

// LoadCSV reads a road network snapshot from two CSV files.
//
// Nodes: id,lat,lng (header optional).
// Edges: from,to[,length_m][,geometry] where geometry is a semicolon-joined
// list of "lng lat" pairs. Edges are treated as bidirectional, matching the
// undirected street data the engine is fed.
func LoadCSV(nodesPath, edgesPath string) (*Snapshot, error) {
	nodes, err := loadNodes(nodesPath)
	if err != nil {
		return nil, err
	}
	edges, err := loadEdges(edgesPath)
	if err != nil {
		return nil, err
	}

	s := NewSnapshot(nodes, edges, true)
	zap.L().Info("roadgraph: snapshot loaded",
		zap.String("nodes_path", nodesPath),
		zap.String("edges_path", edgesPath),
		zap.Int("nodes", s.NumNodes()),
		zap.Int("edges", s.NumEdges()),
	)
	return s, nil
}

func loadNodes(path string) ([]Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roadgraph: open nodes %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var nodes []Node
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "roadgraph: read nodes %s", path)
		}
		line++
		if len(rec) < 3 {
			continue
		}

		id, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, eris.Wrapf(err, "roadgraph: nodes line %d: bad id %q", line, rec[0])
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "roadgraph: nodes line %d: bad lat", line)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "roadgraph: nodes line %d: bad lng", line)
		}
		nodes = append(nodes, Node{ID: id, Lat: lat, Lng: lng})
	}
	return nodes, nil
}

func loadEdges(path string) ([]Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roadgraph: open edges %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var edges []Edge
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "roadgraph: read edges %s", path)
		}
		line++
		if len(rec) < 2 {
			continue
		}

		from, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, eris.Wrapf(err, "roadgraph: edges line %d: bad from %q", line, rec[0])
		}
		to, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "roadgraph: edges line %d: bad to", line)
		}

		e := Edge{From: from, To: to}
		if len(rec) >= 3 && strings.TrimSpace(rec[2]) != "" {
			length, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "roadgraph: edges line %d: bad length", line)
			}
			e.LengthM = length
		}
		if len(rec) >= 4 && strings.TrimSpace(rec[3]) != "" {
			geom, err := parseGeometry(rec[3])
			if err != nil {
				return nil, eris.Wrapf(err, "roadgraph: edges line %d: bad geometry", line)
			}
			e.Geometry = geom
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// parseGeometry parses "lng lat;lng lat;..." into a polyline.
func parseGeometry(s string) ([]model.LatLng, error) {
	parts := strings.Split(s, ";")
	points := make([]model.LatLng, 0, len(parts))
	for _, p := range parts {
		fields := strings.Fields(strings.TrimSpace(p))
		if len(fields) != 2 {
			return nil, eris.Errorf("expected \"lng lat\" pair, got %q", p)
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "bad lng %q", fields[0])
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "bad lat %q", fields[1])
		}
		points = append(points, model.LatLng{Lat: lat, Lng: lng})
	}
	return points, nil
}
