package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/harvester/internal/core/backend"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the available backends and their capabilities",
	Run:   runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func runBackends(cmd *cobra.Command, args []string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCACHING\tRESUMING\tPARAMETERS")

	for _, name := range backend.Default.Names() {
		d, _ := backend.Default.Lookup(name)
		_, _ = fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", name, d.HasCaching(), d.HasResuming(), describe(d.Signature()))
	}
	_ = w.Flush()
}

func describe(sig backend.Signature) string {
	var parts []string
	for _, p := range sig.Init {
		if p.Required {
			parts = append(parts, p.Name+"*")
		} else {
			parts = append(parts, p.Name)
		}
	}
	return strings.Join(parts, ",")
}
