package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/opsecid/webvh-server/server"
	"github.com/urfave/cli/v2"
)

var Version = "dev"

func main() {
	app := &cli.App{
		Name:  "webvh-server",
		Usage: "A did:webvh server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				EnvVars: []string{"WEBVH_ADDR"},
			},
			&cli.StringFlag{
				Name:    "db-url",
				Value:   "webvh.db",
				EnvVars: []string{"WEBVH_DB_URL"},
			},
			&cli.StringFlag{
				Name:     "domain",
				Required: true,
				EnvVars:  []string{"WEBVH_DOMAIN"},
			},
			&cli.StringFlag{
				Name:    "method-version",
				Value:   "1.0",
				EnvVars: []string{"WEBVH_METHOD_VERSION"},
			},
			&cli.IntFlag{
				Name:    "witness-threshold",
				Value:   0,
				EnvVars: []string{"WEBVH_WITNESS_THRESHOLD"},
			},
			&cli.StringFlag{
				Name:    "known-witness-key",
				EnvVars: []string{"WEBVH_KNOWN_WITNESS_KEY"},
			},
			&cli.StringFlag{
				Name:    "watcher",
				EnvVars: []string{"WEBVH_WATCHER"},
			},
			&cli.BoolFlag{
				Name:    "portability",
				EnvVars: []string{"WEBVH_PORTABILITY"},
			},
			&cli.BoolFlag{
				Name:    "prerotation",
				EnvVars: []string{"WEBVH_PREROTATION"},
			},
			&cli.BoolFlag{
				Name:    "endorsement",
				EnvVars: []string{"WEBVH_ENDORSEMENT"},
			},
			&cli.StringFlag{
				Name:     "admin-api-key",
				Required: true,
				EnvVars:  []string{"WEBVH_ADMIN_API_KEY"},
			},
		},
		Commands: []*cli.Command{
			run,
		},
		ErrWriter: os.Stdout,
		Version:   Version,
	}

	app.Run(os.Args)
}

var run = &cli.Command{
	Name:  "run",
	Usage: "Start the webvh server",
	Flags: []cli.Flag{},
	Action: func(cmd *cli.Context) error {
		s, err := server.New(&server.Args{
			Addr:             cmd.String("addr"),
			DbURL:            cmd.String("db-url"),
			Domain:           cmd.String("domain"),
			MethodVersion:    cmd.String("method-version"),
			WitnessThreshold: cmd.Int("witness-threshold"),
			KnownWitnessKey:  cmd.String("known-witness-key"),
			Watcher:          cmd.String("watcher"),
			Portability:      cmd.Bool("portability"),
			Prerotation:      cmd.Bool("prerotation"),
			Endorsement:      cmd.Bool("endorsement"),
			AdminAPIKey:      cmd.String("admin-api-key"),
			Version:          Version,
		})
		if err != nil {
			fmt.Printf("error creating webvh server: %v", err)
			return err
		}

		if err := s.Serve(cmd.Context); err != nil {
			fmt.Printf("error starting webvh server: %v", err)
			return err
		}

		return nil
	},
}
