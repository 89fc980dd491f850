package cmd

import "github.com/urfave/cli"

// Create the openmerge application.
func NewApp() *cli.App {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "openmerge"
	app.Usage = "build two-level BVHs using the open/merge split heuristic"
	app.Version = "0.0.1"
	app.Flags = GlobalFlags()
	app.Commands = []cli.Command{
		BuildCommand(),
	}
	return app
}

// Get the flags shared by all commands.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, notice, warning, error)",
		},
	}
}

// Get the build command definition.
func BuildCommand() cli.Command {
	return cli.Command{
		Name:  "build",
		Usage: "build a two-level BVH over a synthetic scene",
		Description: `
Generate a scene made of clustered box meshes and build a BVH for each mesh.
A top-level BVH is then built over the mesh roots; whenever the roots of
overlapping meshes end up in the same range they are opened into their
children, consuming the spare slots reserved after the root references.

Build statistics are printed once the top-level tree is complete.`,
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "meshes",
				Value: 64,
				Usage: "number of meshes",
			},
			cli.IntFlag{
				Name:  "boxes",
				Value: 256,
				Usage: "boxes per mesh",
			},
			cli.Float64Flag{
				Name:  "spread",
				Value: 100,
				Usage: "side of the cube that contains the mesh centers",
			},
			cli.Float64Flag{
				Name:  "mesh-radius",
				Value: 10,
				Usage: "half side of the cube around a mesh center that contains its boxes",
			},
			cli.Float64Flag{
				Name:  "box-size",
				Value: 1,
				Usage: "maximum box side",
			},
			cli.Int64Flag{
				Name:  "seed",
				Value: 1,
				Usage: "random seed",
			},
			cli.Float64Flag{
				Name:  "spare, s",
				Value: 1,
				Usage: "spare slots to reserve for node opening as a fraction of the primitive count",
			},
			cli.IntFlag{
				Name:  "min-leaf",
				Value: 4,
				Usage: "ranges with this many references or fewer become leafs",
			},
			cli.IntFlag{
				Name:  "max-depth",
				Value: 64,
				Usage: "max top-level tree depth",
			},
			cli.IntFlag{
				Name:  "log-block-size",
				Value: 0,
				Usage: "log2 of the block size used by the SAH cost",
			},
			cli.StringFlag{
				Name:  "policy, p",
				Value: "single-pass",
				Usage: "node opening policy (single-pass, iterative)",
			},
			cli.IntFlag{
				Name:  "workers, w",
				Usage: "max number of concurrent workers (defaults to GOMAXPROCS)",
			},
			cli.BoolFlag{
				Name:  "validate",
				Usage: "verify the window invariants of every split",
			},
			cli.BoolFlag{
				Name:  "metrics",
				Usage: "collect and display build metrics",
			},
		},
		Action: BuildScene,
	}
}
