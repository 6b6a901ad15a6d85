package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloo-solutions/attestai/internal/repository"
	"github.com/cloo-solutions/attestai/internal/service"
	"github.com/spf13/cobra"
)

func FrameworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "framework",
		Short: "Manage compliance frameworks",
		Long:  "Import and list compliance frameworks and their control checklists",
	}

	cmd.AddCommand(FrameworkImportCmd())
	cmd.AddCommand(FrameworkListCmd())

	return cmd
}

func FrameworkImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a framework from a JSON file",
		Long:  "Import a compliance framework and its control checklist from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runFrameworkImport,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

// frameworkImportFile is the on-disk import payload:
//
//	{"name": "SOC 2", "version": "2017", "description": "...",
//	 "controls": [{"code": "CC6.1", "title": "...", "requirement": "...", "category": "..."}]}
type frameworkImportFile struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Controls    []struct {
		Code        string `json:"code"`
		Title       string `json:"title"`
		Requirement string `json:"requirement"`
		Category    string `json:"category"`
	} `json:"controls"`
}

func runFrameworkImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read framework file: %w", err)
	}

	var payload frameworkImportFile
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to parse framework file: %w", err)
	}

	controls := make([]service.ControlImport, len(payload.Controls))
	for i, c := range payload.Controls {
		controls[i] = service.ControlImport{
			Code:        c.Code,
			Title:       c.Title,
			Requirement: c.Requirement,
			Category:    c.Category,
		}
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	frameworkRepo := repository.NewFrameworkRepository(pool)
	frameworkSvc := service.NewFrameworkService(frameworkRepo, repository.NewTxRunner(pool), repository.NewRetryer())

	framework, err := frameworkSvc.Import(ctx, payload.Name, payload.Version, payload.Description, controls)
	if err != nil {
		return fmt.Errorf("failed to import framework: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":            framework.ID,
			"name":          framework.Name,
			"version":       framework.Version,
			"control_count": len(controls),
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Framework imported: %s %s (%s), %d controls\n", framework.Name, framework.Version, framework.ID, len(controls))
	}

	return nil
}

func FrameworkListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all frameworks",
		Long:  "List every framework in the control catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runFrameworkList(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runFrameworkList(outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	frameworkRepo := repository.NewFrameworkRepository(pool)

	frameworks, err := frameworkRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list frameworks: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(frameworks))
		for i, f := range frameworks {
			data[i] = map[string]interface{}{
				"id":         f.ID,
				"name":       f.Name,
				"version":    f.Version,
				"created_at": f.CreatedAt,
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(frameworks) == 0 {
			fmt.Println("No frameworks found")
			return nil
		}
		fmt.Println("Frameworks:")
		for _, f := range frameworks {
			fmt.Printf("  %s: %s %s (created: %s)\n", f.ID, f.Name, f.Version, f.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return nil
}
