package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loom-dev/loom/internal/errors"
	"github.com/loom-dev/loom/internal/templates"
)

func createCmd() *cobra.Command {
	var (
		template    string
		description string
		install     bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new Loom project",
		Long: `Create a new Loom project with the specified name.

Templates:
  minimal   Client and SSR entries only
  full      Client, SSR, and an example API target (default)

Examples:
  loom create my-app
  loom create my-app --template=minimal
  loom create my-app --install=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args[0], template, description, install)
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", "full", "Project template ("+strings.Join(templates.List(), ", ")+")")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Project description")
	cmd.Flags().BoolVar(&install, "install", true, "Run npm install after scaffolding")

	return cmd
}

func runCreate(name, templateName, description string, install bool) error {
	printBanner()
	fmt.Println("  Creating a new Loom project...")
	fmt.Println()

	// Validate project name
	if !isValidProjectName(name) {
		return errors.New("E504").
			WithDetail("'" + name + "' is not a usable directory name").
			WithSuggestion("Use letters, numbers, hyphens, and underscores")
	}

	projectDir, err := filepath.Abs(name)
	if err != nil {
		return err
	}

	// Refuse to scaffold over existing files
	if entries, err := os.ReadDir(projectDir); err == nil {
		if len(entries) > 0 {
			return errors.New("E502").
				WithDetail("Directory '" + name + "' already exists and is not empty").
				WithSuggestion("Choose a different name or remove the existing directory")
		}
	} else if !os.IsNotExist(err) {
		return errors.New("E502").
			WithDetail("'" + name + "' already exists and is not a directory")
	}

	// Set defaults
	if description == "" {
		description = "A Loom web application"
	}

	// Get template
	tmpl, err := templates.Get(templateName)
	if err != nil {
		return err
	}

	// Create project from template
	info("Creating project from '%s' template...", templateName)
	if err := tmpl.Create(projectDir, templates.Config{
		ProjectName: name,
		Description: description,
	}); err != nil {
		// Clean up on error
		os.RemoveAll(projectDir)
		return err
	}

	// Install dependencies
	if install {
		info("Installing dependencies...")
		if err := npmInstall(projectDir); err != nil {
			warn("Could not run 'npm install': %v", err)
			warn("Run it manually before 'loom dev'")
		}
	}

	// Print success message
	fmt.Println()
	success("Created %s/", name)
	fmt.Println()
	fmt.Println("  To get started:")
	fmt.Println()
	fmt.Printf("    cd %s\n", name)
	fmt.Println("    loom dev")
	fmt.Println()
	fmt.Printf("  Your app will be running at http://localhost:3000\n")
	fmt.Println()

	return nil
}

func isValidProjectName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for i, r := range name {
		if r == ' ' || r == '/' || r == '\\' {
			return false
		}
		if i == 0 && r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}

func npmInstall(dir string) error {
	if _, err := exec.LookPath("npm"); err != nil {
		return fmt.Errorf("npm not found, please install Node.js")
	}

	cmd := exec.Command("npm", "install")
	cmd.Dir = dir
	return cmd.Run()
}
