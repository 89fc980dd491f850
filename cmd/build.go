package cmd

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/achilleasa/openmerge/bvh"
	"github.com/achilleasa/openmerge/parallel"
	"github.com/achilleasa/openmerge/scene"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
)

// Generate a synthetic scene, build a BVH for each mesh and a top-level BVH
// over the mesh roots that opens overlapping meshes.
func BuildScene(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	if workers := ctx.Int("workers"); workers > 0 {
		parallel.SetWorkers(workers)
	}

	opts, err := builderOptions(ctx)
	if err != nil {
		return err
	}

	spareFactor := ctx.Float64("spare")
	if spareFactor < 0 {
		return ErrInvalidSpare
	}

	var reg *prometheus.Registry
	if ctx.Bool("metrics") {
		reg = prometheus.NewRegistry()
		opts.Metrics = bvh.NewMetrics(reg)
	}

	sc, err := scene.Generate(sceneConfig(ctx))
	if err != nil {
		return err
	}

	logger.Noticef("building BVH for %d meshes", len(sc.Meshes))
	start := time.Now()
	sc.BuildMeshes(opts)
	meshBuildTime := time.Since(start)

	refs, numRefs, err := sc.TopLevelRefs(spareFactor)
	if err != nil {
		return err
	}

	logger.Noticef("building top-level BVH (policy: %s, spare slots: %d)", opts.Policy, len(refs)-numRefs)
	tree := bvh.Build(refs, numRefs, sc.OpenNode, opts)

	displayBuildStats(sc, meshBuildTime, tree.Stats)
	if reg != nil {
		return displayMetrics(reg)
	}
	return nil
}

func builderOptions(ctx *cli.Context) (bvh.Options, error) {
	opts := bvh.DefaultOptions()
	opts.MinLeafItems = ctx.Int("min-leaf")
	opts.MaxDepth = ctx.Int("max-depth")
	opts.LogBlockSize = uint(ctx.Int("log-block-size"))
	opts.Validate = ctx.Bool("validate")

	if opts.MinLeafItems < 1 {
		return opts, ErrInvalidLeafSize
	}

	policy, err := parsePolicy(ctx.String("policy"))
	if err != nil {
		return opts, err
	}
	opts.Policy = policy

	return opts, nil
}

func parsePolicy(name string) (bvh.OpeningPolicy, error) {
	for _, policy := range []bvh.OpeningPolicy{bvh.OpenSinglePass, bvh.OpenIterative} {
		if strings.EqualFold(name, policy.String()) {
			return policy, nil
		}
	}
	return bvh.OpenSinglePass, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

func sceneConfig(ctx *cli.Context) scene.Config {
	return scene.Config{
		Meshes:       ctx.Int("meshes"),
		BoxesPerMesh: ctx.Int("boxes"),
		Spread:       float32(ctx.Float64("spread")),
		MeshRadius:   float32(ctx.Float64("mesh-radius")),
		BoxSize:      float32(ctx.Float64("box-size")),
		Seed:         ctx.Int64("seed"),
	}
}

func displayBuildStats(sc *scene.Scene, meshBuildTime time.Duration, stats bvh.Stats) {
	var meshNodes, meshLeafs, meshDepth int
	for _, m := range sc.Meshes {
		meshNodes += m.Tree.Stats.Nodes
		meshLeafs += m.Tree.Stats.Leafs
		meshDepth = max(meshDepth, m.Tree.Stats.MaxDepth)
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Tree", "Nodes", "Leafs", "Max depth", "Opened slots", "Fallback splits", "Build time"})
	table.Append([]string{
		fmt.Sprintf("meshes (%d)", len(sc.Meshes)),
		fmt.Sprintf("%d", meshNodes),
		fmt.Sprintf("%d", meshLeafs),
		fmt.Sprintf("%d", meshDepth),
		"-",
		"-",
		fmt.Sprintf("%s", meshBuildTime),
	})
	table.Append([]string{
		"top-level",
		fmt.Sprintf("%d", stats.Nodes),
		fmt.Sprintf("%d", stats.Leafs),
		fmt.Sprintf("%d", stats.MaxDepth),
		fmt.Sprintf("%d", stats.ExtraElements),
		fmt.Sprintf("%d", stats.FallbackSplits),
		fmt.Sprintf("%s", stats.BuildTime),
	})
	table.SetFooter([]string{"", "", "", "", "", "TOTAL", fmt.Sprintf("%s", meshBuildTime+stats.BuildTime)})

	table.Render()
	logger.Noticef("build statistics (%d primitives)\n%s", sc.NumPrims(), buf.String())
}

func displayMetrics(reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Metric", "Labels", "Value"})
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprintf("%g", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				value = fmt.Sprintf("count=%d sum=%g", h.GetSampleCount(), h.GetSampleSum())
			case m.GetGauge() != nil:
				value = fmt.Sprintf("%g", m.GetGauge().GetValue())
			default:
				value = "-"
			}
			table.Append([]string{mf.GetName(), strings.Join(labels, ","), value})
		}
	}

	table.Render()
	logger.Noticef("build metrics\n%s", buf.String())
	return nil
}
