// Command pcidx is a thin CLI wrapper over the pointcloud façade: it
// imports a raw XYZ text file into a disk-backed octree index, then
// reports the resulting PointSet handle. It exists to exercise the
// façade end-to-end, not as a production ingestion tool.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pointstream/pcidx/chunk"
	"github.com/pointstream/pcidx/internal/log"
	"github.com/pointstream/pcidx/pointcloud"
	"github.com/pointstream/pcidx/query"
	"github.com/pointstream/pcidx/store/leveldb"
)

func main() {
	app := &cli.App{
		Name:  "pcidx",
		Usage: "import point clouds into a persistent octree index and query them back",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Value: "pcidx-data", Usage: "directory for the leveldb-backed blob store"},
			&cli.StringFlag{Name: "input", Required: true, Usage: "path to a whitespace-delimited XYZ text file (x y z per line)"},
			&cli.StringFlag{Name: "key", Usage: "symbolic name for the resulting PointSet; generated if empty"},
			&cli.IntFlag{Name: "split-limit", Value: 8192, Usage: "max points per leaf"},
			&cli.BoolFlag{Name: "verbose", Usage: "emit debug-level progress logging"},
			&cli.BoolFlag{Name: "query-count", Usage: "after import, run an always-inside query and print the point count"},
		},
		Action: runImport,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pcidx:", err)
		os.Exit(1)
	}
}

func runImport(c *cli.Context) error {
	db, err := leveldb.Open(c.String("db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	chk, err := readXYZ(c.String("input"))
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	cfg := pointcloud.Config{
		Key:        c.String("key"),
		Storage:    db,
		SplitLimit: c.Int("split-limit"),
		Verbose:    c.Bool("verbose"),
		ProgressCallback: func(p float64) {
			log.Info("import progress", "fraction", p)
		},
	}
	ps, err := pointcloud.Import(context.Background(), []*chunk.Chunk{chk}, cfg)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("imported %q: root=%s split_limit=%d points=%d\n", ps.Id, ps.RootNodeId, ps.SplitLimit, len(chk.Positions))

	if c.Bool("query-count") {
		_, root, err := pointcloud.Open(db, ps.Id)
		if err != nil {
			return fmt.Errorf("reopen: %w", err)
		}
		pred := query.InsideBox([3]float64{-1e18, -1e18, -1e18}, [3]float64{1e18, 1e18, 1e18})
		it := query.NewIterator(context.Background(), root, pred)
		total := 0
		for {
			result, ok, err := it.Next()
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			if !ok {
				break
			}
			total += result.Len()
		}
		fmt.Printf("query-count: %d\n", total)
	}
	return nil
}

func readXYZ(path string) (*chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var positions [][3]float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("malformed line %q", line)
		}
		var p [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", fields[i], err)
			}
			p[i] = v
		}
		positions = append(positions, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &chunk.Chunk{Positions: positions}, nil
}
