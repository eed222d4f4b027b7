package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "importctl",
		Usage: "operate the catalog migrator API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "API base URL",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("MIGRATOR_API_URL"),
			},
			&cli.StringFlag{
				Name:    "user",
				Usage:   "tenant id sent as X-User-ID",
				Sources: cli.EnvVars("MIGRATOR_USER_ID"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "runner token for tick and stats",
				Sources: cli.EnvVars("MIGRATOR_RUNNER_TOKEN", "RUNNER_TOKEN"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "request timeout",
				Value: 2 * time.Minute,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print raw JSON instead of tables",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "enqueue",
				Usage: "start an import",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "source platform (shopify/wordpress/wix)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "all or links (defaults to links when --link is given)",
					},
					&cli.StringFlag{
						Name:  "base-url",
						Usage: "storefront URL",
					},
					&cli.StringSliceFlag{
						Name:  "link",
						Usage: "product link, repeatable",
					},
					&cli.IntFlag{
						Name:  "cap",
						Usage: "maximum number of items",
					},
					&cli.StringSliceFlag{
						Name:  "category",
						Usage: "category added to every product, repeatable",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "tag added to every product, repeatable",
					},
					&cli.BoolFlag{
						Name:  "priority",
						Usage: "use the high priority lane",
					},
				},
				Action: enqueueAction,
			},
			{
				Name:   "list",
				Usage:  "list imports of the tenant",
				Flags:  pageFlags(),
				Action: listAction,
			},
			{
				Name:   "status",
				Usage:  "show an import with its ledger counts",
				Flags:  []cli.Flag{requestIDFlag()},
				Action: statusAction,
			},
			{
				Name:  "logs",
				Usage: "show the progress log of an import",
				Flags: []cli.Flag{
					requestIDFlag(),
					&cli.IntFlag{Name: "limit", Usage: "number of entries", Value: 20},
				},
				Action: logsAction,
			},
			{
				Name:   "results",
				Usage:  "list per-item results of an import",
				Flags:  append([]cli.Flag{requestIDFlag()}, pageFlags()...),
				Action: resultsAction,
			},
			{
				Name:   "cancel",
				Usage:  "cancel an import",
				Flags:  []cli.Flag{requestIDFlag()},
				Action: cancelAction,
			},
			{
				Name:  "tick",
				Usage: "run one runner pass",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Usage: "limit the pass to one source"},
				},
				Action: tickAction,
			},
			{
				Name:  "stats",
				Usage: "show queue depths",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "request-id", Usage: "include ledger counts of this import"},
				},
				Action: statsAction,
			},
			{
				Name:  "destination",
				Usage: "manage the tenant destination store",
				Commands: []*cli.Command{
					{
						Name:  "set",
						Usage: "save destination credentials",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "store-url", Usage: "destination store URL", Required: true},
							&cli.StringFlag{Name: "consumer-key", Usage: "REST consumer key", Required: true},
							&cli.StringFlag{
								Name:     "consumer-secret",
								Usage:    "REST consumer secret",
								Required: true,
								Sources:  cli.EnvVars("MIGRATOR_CONSUMER_SECRET"),
							},
						},
						Action: destinationSetAction,
					},
					{
						Name:   "show",
						Usage:  "show the saved destination",
						Action: destinationShowAction,
					},
				},
			},
		},
	}
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "status", Usage: "filter by status"},
		&cli.IntFlag{Name: "page-size", Usage: "items per page", Value: 20},
		&cli.StringFlag{Name: "cursor", Usage: "next_cursor of the previous page"},
	}
}

func requestIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "request-id",
		Usage:    "import request id",
		Required: true,
	}
}
