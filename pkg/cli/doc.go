/*
Package cli holds helpers shared by the constitution command.

Output formatting:

Commands render results as text, JSON or CSV. Values that implement
Tabular are written as CSV rows; everything else is rejected by the CSV
formatter.

	f, err := cli.ParseFormat(flags.format)
	if err != nil {
		return err
	}
	return cli.NewFormatter(f).FormatTo(cmd.OutOrStdout(), result)

Exit codes:

ExitError carries a process exit status. The check command uses it to
report a blocked decision as status 2 without printing a usage message.

Signal handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	hup, stopHup := cli.Hangups()
	defer stopHup()
*/
package cli
