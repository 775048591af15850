package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/kate/pkg/cli"
	"mercator-hq/kate/pkg/gateway"
)

var routesFlags struct {
	services string
	format   string
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route table a services file produces",
	Long: `Register a services file into an empty routing table and print every
bound (path, method) pair with the stages its pipeline runs.

Secret references are not resolved and no upstream or broker is contacted.

Examples:
  kate routes --services services.yaml
  kate routes --services services.json --output csv`,
	RunE: printRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().StringVarP(&routesFlags.services, "services", "s", "", "services file (defaults to services.file_path)")
	routesCmd.Flags().StringVarP(&routesFlags.format, "output", "o", "text", "output format: text, json, yaml, csv")
}

// routeList renders as a table in text and CSV output.
type routeList []gateway.RouteInfo

func (l routeList) Table() cli.Table {
	t := cli.Table{Headers: []string{"METHOD", "PATH", "SERVICE", "TAG", "STAGES"}}
	for _, r := range l {
		tag := r.Tag
		if tag == "" {
			tag = "-"
		}
		t.Rows = append(t.Rows, []string{r.Method, r.Path, r.Service, tag, strings.Join(r.Stages, ",")})
	}
	return t
}

func printRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	formatter, err := cli.NewFormatter(cli.OutputFormat(routesFlags.format))
	if err != nil {
		return err
	}

	services, err := readServicesFile(cmd.Context(), servicesPath(cfg, routesFlags.services))
	if err != nil {
		return err
	}

	gw := gateway.New(gateway.Options{Logger: slog.New(slog.DiscardHandler)})
	defer gw.Close()
	if err := gw.Replace(cmd.Context(), services); err != nil {
		return cli.NewConfigError("services", err.Error())
	}
	return formatter.FormatTo(cmd.OutOrStdout(), routeList(gw.Routes()))
}
