package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cartloom/bulkimport/internal/catalog"
	"github.com/cartloom/bulkimport/internal/pipeline"
)

var templateOut string

var templateCmd = &cobra.Command{
	Use:   "template <type>",
	Short: "Download the CSV template for an import type",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplate,
}

func init() {
	templateCmd.Flags().StringVarP(&templateOut, "output", "o", "", "write the template to a file instead of stdout")
}

func runTemplate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	typ, err := pipeline.ParseImportType(args[0])
	if err != nil {
		return err
	}

	client := catalog.New(cfg.Backend.URL,
		catalog.WithToken(cfg.Backend.Token),
		catalog.WithTimeout(cfg.Backend.Timeout),
	)

	tmpl, err := client.Template(cmd.Context(), typ)
	if err != nil {
		return err
	}

	csv := tmpl.CSV()
	if templateOut == "" {
		fmt.Print(csv)
		return nil
	}

	if err := os.WriteFile(templateOut, []byte(csv), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", templateOut)
	return nil
}
