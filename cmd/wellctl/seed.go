package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/service"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create an instrument and assign it to students",
	Long: "Creates the default wellness instrument, or the definition given with --file, " +
		"then assigns it to a whole school and/or individual students.",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		schoolID, _ := cmd.Flags().GetInt("school")
		studentIDs, _ := cmd.Flags().GetIntSlice("student")
		demo, _ := cmd.Flags().GetInt("demo-students")

		inst := catalog.Default()
		if file != "" {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read definition: %w", err)
			}
			parsed, err := catalog.Parse(raw)
			if err != nil {
				return err
			}
			inst = parsed
		}

		ctx := context.Background()
		cfg := loadConfig(cmd)
		log := cliLogger()

		b, err := openBackend(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer b.close()

		svc := service.NewInstrumentService(b.instruments, b.submissions, nil, 0, log)
		if err := svc.Create(ctx, inst); err != nil {
			return fmt.Errorf("create instrument: %w", err)
		}
		fmt.Printf("Instrument %q created: %s\n", inst.Title, inst.ID)

		if demo > 0 {
			if schoolID == 0 {
				return fmt.Errorf("--demo-students requires --school")
			}
			for i := 1; i <= demo; i++ {
				s := &model.Student{
					AccessID:     fmt.Sprintf("S%d-%04d", schoolID, i),
					Name:         fmt.Sprintf("Demo Student %d", i),
					ClassLabel:   fmt.Sprintf("Grade %d", 6+i%3),
					ClassSection: string(rune('A' + i%2)),
					SchoolID:     schoolID,
				}
				if err := b.students.Create(ctx, s); err != nil {
					return fmt.Errorf("create demo student %s: %w", s.AccessID, err)
				}
				fmt.Printf("Student %s created: id=%d\n", s.AccessID, s.ID)
			}
		}

		if schoolID != 0 {
			n, err := b.students.AssignToSchool(ctx, schoolID, inst.ID)
			if err != nil {
				return fmt.Errorf("assign to school %d: %w", schoolID, err)
			}
			fmt.Printf("Assigned to %d students of school %d\n", n, schoolID)
		}

		for _, id := range studentIDs {
			if err := b.students.AssignInstrument(ctx, id, inst.ID); err != nil {
				return fmt.Errorf("assign to student %d: %w", id, err)
			}
			fmt.Printf("Assigned to student %d\n", id)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "", "Instrument definition JSON (default: built-in wellness check)")
	seedCmd.Flags().Int("school", 0, "Assign to every student of this school")
	seedCmd.Flags().IntSlice("student", nil, "Assign to these student IDs")
	seedCmd.Flags().Int("demo-students", 0, "Create this many demo students in --school first")
}
