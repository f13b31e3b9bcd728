package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var showJSON bool

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runDocs,
}

var showCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Print a stored document's chunks in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print records as JSON, embeddings included")
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(showCmd)
}

func runDocs(cmd *cobra.Command, args []string) error {
	st, err := openStore(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer st.close()
	if st.reader == nil {
		return fmt.Errorf("store backend %q cannot list documents", GetConfig().Store.Backend)
	}

	docs, err := st.reader.Documents(cmd.Context())
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT ID\tSOURCE\tTITLE\tCATEGORY\tCHUNKS\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			d.DocumentID, d.Source, d.Title, d.Category, d.ChunkCount,
			time.Unix(d.CreatedAt, 0).Format(time.RFC3339))
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	st, err := openStore(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer st.close()
	if st.reader == nil {
		return fmt.Errorf("store backend %q cannot read documents back", GetConfig().Store.Backend)
	}

	records, err := st.reader.RecordsByDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if showJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	for _, r := range records {
		m := r.Metadata
		fmt.Printf("--- #%d [%d:%d) %d chars\n", m.Order, m.StartChar, m.EndChar, m.Length)
		fmt.Println(r.Content)
	}
	return nil
}
