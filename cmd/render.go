package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deploykit/config"
	"github.com/deploykit/dto"
	"github.com/deploykit/repositories"
	"github.com/deploykit/services"
	"github.com/deploykit/utils"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

type renderOptions struct {
	file   string
	tag    string
	branch string
	commit string
	port   int
	show   []string
}

var renderOpts renderOptions

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the Dockerfile, manifests and build script for a project file",
	Long: `render reads a project description (the same fields as the create
project API, in YAML) and prints what a deployment of it would run, without
touching the database, the build host or the cluster.`,
	Example: `  deploykit render -f project.yaml
  deploykit render -f project.yaml --tag 42 --show manifests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(renderOpts.file)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), raw, renderOpts, services.PlatformFromConfig(config.Load()))
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOpts.file, "file", "f", "project.yaml", "project file")
	renderCmd.Flags().StringVar(&renderOpts.tag, "tag", "latest", "image tag")
	renderCmd.Flags().StringVar(&renderOpts.branch, "branch", "", "branch to build (default: the project's default branch)")
	renderCmd.Flags().StringVar(&renderOpts.commit, "commit", "", "commit to check out")
	renderCmd.Flags().IntVar(&renderOpts.port, "port", repositories.FirstPort, "node port assigned to the project")
	renderCmd.Flags().StringSliceVar(&renderOpts.show, "show", []string{"dockerfile", "manifests", "script"}, "sections to print")
	rootCmd.AddCommand(renderCmd)
}

func render(w io.Writer, raw []byte, opts renderOptions, platform services.Platform) error {
	var req dto.CreateProjectRequest
	if err := yaml.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse project file: %w", err)
	}
	if req.Name == "" {
		req.Name = utils.ExtractRepoName(req.RepositoryURL)
	}
	project, err := services.NewProjectFromRequest(0, req)
	if err != nil {
		return err
	}
	project.Port = opts.port

	plan, err := services.BuildPlan(services.PlanInput{
		Project: project,
		Branch:  opts.branch,
		Commit:  opts.commit,
		Tag:     opts.tag,
	}, platform)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %s\n", bold("App:"), plan.AppName)
	fmt.Fprintf(w, "%s %s\n", bold("Image:"), plan.Image)
	if url := services.PublicURL(project, platform); url != "" {
		fmt.Fprintf(w, "%s %s\n", bold("URL:"), url)
	}

	for _, section := range opts.show {
		switch strings.ToLower(section) {
		case "dockerfile":
			fmt.Fprintf(w, "\n%s\n%s", cyan("# Dockerfile"), plan.Dockerfile)
		case "manifests":
			for _, m := range plan.Manifests {
				fmt.Fprintf(w, "\n%s\n%s", cyan("# "+m.FileName()), m.Content)
			}
		case "script":
			fmt.Fprintf(w, "\n%s\n%s\n", cyan("# build script"), plan.Script)
		default:
			fmt.Fprintf(w, "%s unknown section %q\n", yellow("⚠️"), section)
		}
	}
	return nil
}
