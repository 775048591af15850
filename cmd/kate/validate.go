package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/kate/pkg/cli"
	"mercator-hq/kate/pkg/config"
	"mercator-hq/kate/pkg/gateway"
	"mercator-hq/kate/pkg/service"
	"mercator-hq/kate/pkg/service/store"
)

var validateFlags struct {
	services     string
	probe        bool
	probeTimeout time.Duration
	format       string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and a services file",
	Long: `Validate the configuration file and the service definitions it points to.

Every service is checked the way the admin API checks it: required fields,
URI templates, methods and authentication policies. The services are then
registered into an empty routing table so overlapping templates are reported.

With --probe each distinct upstream base URL is requested once; any HTTP
response counts as reachable.

Examples:
  # Validate config.yaml and its services file
  kate validate --config kate.yaml

  # Validate a specific services file
  kate validate --services services.yaml

  # Also check that upstreams answer
  kate validate --services services.yaml --probe --output json`,
	RunE: validateServices,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.services, "services", "s", "", "services file (defaults to services.file_path)")
	validateCmd.Flags().BoolVar(&validateFlags.probe, "probe", false, "request every upstream base URL")
	validateCmd.Flags().DurationVar(&validateFlags.probeTimeout, "probe-timeout", 5*time.Second, "timeout for each probe")
	validateCmd.Flags().StringVarP(&validateFlags.format, "output", "o", "text", "output format: text, json, yaml")
}

// validationReport is the result of kate validate.
type validationReport struct {
	ServicesFile string        `json:"servicesFile" yaml:"servicesFile"`
	Services     int           `json:"services" yaml:"services"`
	Routes       int           `json:"routes" yaml:"routes"`
	Problems     []string      `json:"problems" yaml:"problems"`
	Probes       []probeResult `json:"probes,omitempty" yaml:"probes,omitempty"`
}

type probeResult struct {
	URL       string `json:"url" yaml:"url"`
	Status    int    `json:"status,omitempty" yaml:"status,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	Reachable bool   `json:"reachable" yaml:"reachable"`
}

func (r *validationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Services file: %s\n", r.ServicesFile)
	if len(r.Problems) == 0 {
		fmt.Fprintf(&b, "✓ %d services, %d routes\n", r.Services, r.Routes)
	}
	for _, p := range r.Problems {
		fmt.Fprintf(&b, "✗ %s\n", p)
	}
	for _, p := range r.Probes {
		if p.Reachable {
			fmt.Fprintf(&b, "✓ %s answered %d\n", p.URL, p.Status)
		} else {
			fmt.Fprintf(&b, "! %s unreachable: %s\n", p.URL, p.Error)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func validateServices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	formatter, err := cli.NewFormatter(cli.OutputFormat(validateFlags.format))
	if err != nil {
		return err
	}

	path := servicesPath(cfg, validateFlags.services)
	services, err := readServicesFile(cmd.Context(), path)
	if err != nil {
		return err
	}

	report := checkServices(cmd.Context(), services)
	report.ServicesFile = path
	if validateFlags.probe {
		report.Probes = probeUpstreams(cmd.Context(), services, validateFlags.probeTimeout, cmd.ErrOrStderr())
	}

	if err := formatter.FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if len(report.Problems) > 0 {
		return cli.NewConfigError("", fmt.Sprintf("%s: %d problems", path, len(report.Problems)))
	}
	return nil
}

// checkServices registers each definition in a scratch gateway, which
// validates it and reports overlapping templates.
func checkServices(ctx context.Context, services []service.Service) *validationReport {
	report := &validationReport{Services: len(services), Problems: []string{}}

	gw := gateway.New(gateway.Options{Logger: slog.New(slog.DiscardHandler)})
	defer gw.Close()

	for _, svc := range services {
		rep, err := gw.Register(ctx, svc)
		if err != nil {
			report.Problems = append(report.Problems, err.Error())
			continue
		}
		for _, c := range rep.Conflicts {
			report.Problems = append(report.Problems, fmt.Sprintf("service %s: %v", svc.Name, c))
		}
	}
	report.Routes = gw.Table().Len()
	return report
}

func probeUpstreams(ctx context.Context, services []service.Service, timeout time.Duration, progressOut io.Writer) []probeResult {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, svc := range services {
		add(svc.BaseURL)
		for _, r := range svc.Routes {
			add(r.BaseURL)
		}
	}

	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	progress := cli.NewLabeledProgress(progressOut, "Probing")
	progress.Start(int64(len(urls)))

	results := make([]probeResult, 0, len(urls))
	for i, u := range urls {
		res := probeResult{URL: u}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
		if err == nil {
			var resp *http.Response
			if resp, err = client.Do(req); err == nil {
				resp.Body.Close()
				res.Status, res.Reachable = resp.StatusCode, true
			}
		}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
		progress.Update(int64(i + 1))
	}
	progress.Finish()
	return results
}

// servicesPath picks the services file: the flag, else the configured file.
func servicesPath(cfg *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Services.FilePath
}

// readServicesFile loads a services file without creating it.
func readServicesFile(ctx context.Context, path string) ([]service.Service, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, cli.NewConfigError("services", fmt.Sprintf("%s does not exist", path))
	}
	s, err := store.NewFileStore(path)
	if err != nil {
		return nil, cli.NewConfigError("services", err.Error())
	}
	defer s.Close()

	services, err := s.Load(ctx)
	if err != nil {
		return nil, cli.NewConfigError("services", err.Error())
	}
	return services, nil
}
