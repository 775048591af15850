/*
Package cli holds the helpers shared by the kate commands: result formatting,
progress reporting, signal handling and the errors that decide the exit code.

Output Formatting:

Commands print results as text, JSON, YAML or CSV. Values implementing
Tabular print as aligned columns in text mode and as rows in CSV:

	formatter, err := cli.NewFormatter(cli.FormatYAML)
	if err != nil {
		return err
	}
	return formatter.FormatTo(os.Stdout, routes)

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(services)))
	for i, svc := range services {
		probe(svc)
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
