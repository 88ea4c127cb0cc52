package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check an instrument definition without storing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read definition: %w", err)
		}

		inst, err := catalog.Parse(raw)
		if err != nil {
			var ve *catalog.ValidationError
			if errors.As(err, &ve) {
				for _, p := range ve.Problems {
					fmt.Println("  -", p)
				}
			}
			return err
		}

		fmt.Printf("OK: %q, %d questions, %d sections, %d buckets\n",
			inst.Title, len(inst.Questions), len(inst.Sections), len(inst.Buckets))
		return nil
	},
}
