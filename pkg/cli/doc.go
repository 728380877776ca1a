/*
Package cli provides command-line interface utilities for tokencap.

The cli package includes output formatters, error types, and common CLI
helpers used by the tokencap command.

Output Formatting:

The cli package supports multiple output formats (text, JSON, CSV) for
displaying command results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	data := MyCommandResult{...}
	if err := formatter.FormatTo(os.Stdout, data); err != nil {
		return err
	}

CSV output requires the result to implement Tabular:

	type rows [][]string
	// Header() []string and Rows() [][]string make a result CSV-exportable.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	sig := <-cli.WaitForShutdown()
	// Stop the server, then report which signal ended the process
*/
package cli
