package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/contentsync-go/internal/app"
	"github.com/yourusername/contentsync-go/internal/content"
	"github.com/yourusername/contentsync-go/internal/domain"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [manifest]",
	Short: "Summarize a manifest file offline",
	Long: `Parses a manifest file and prints its packages as YAML. With --content-dir
the manifest is also planned against that installed content, without
modifying it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		contentDir, _ := cmd.Flags().GetString("content-dir")
		bundleDir, _ := cmd.Flags().GetString("bundle-dir")

		data, err := os.ReadFile(args[0])
		if err != nil {
			fail(err)
		}

		var storage *content.Storage
		if contentDir != "" {
			storage = content.NewOsStorage(contentDir, bundleDir)
		}

		report, err := inspectManifest(data, storage, content.DefaultLayout())
		if err != nil {
			fail(err)
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			fail(err)
		}
		fmt.Print(string(out))
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(args[0]); err == nil && !force {
			fail(fmt.Errorf("%s already exists, use --force to overwrite", args[0]))
		}
		if err := app.SaveConfig(domain.DefaultConfig(), args[0]); err != nil {
			fail(err)
		}
		fmt.Printf("Configuration written to %s\n", args[0])
	},
}

func init() {
	inspectCmd.Flags().String("content-dir", "", "Installed content directory to plan against")
	inspectCmd.Flags().String("bundle-dir", "", "Read-only bundle directory")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

type inspectReport struct {
	DLCEnabled bool                  `yaml:"dlc_enabled"`
	TotalSize  uint64                `yaml:"total_size"`
	Packages   []domain.PackageEntry `yaml:"packages"`
	Plan       *inspectPlan          `yaml:"plan,omitempty"`
}

type inspectPlan struct {
	LocalManifest bool               `yaml:"local_manifest"`
	Result        domain.CheckResult `yaml:"result"`
	domain.Plan   `yaml:",inline"`
}

// readOnlyChecker plans without discarding content copies superseded by the bundle
type readOnlyChecker struct {
	*content.StorageChecker
}

func (readOnlyChecker) DiscardStale(string) error { return nil }

// inspectManifest summarizes a manifest document. When storage is set the
// manifest is also planned against the content it holds.
func inspectManifest(data []byte, storage *content.Storage, layout content.Layout) (*inspectReport, error) {
	manifest, err := content.ParseManifest(data)
	if err != nil {
		return nil, err
	}

	report := &inspectReport{
		DLCEnabled: manifest.DLCEnabled,
		Packages:   manifest.Packages,
	}
	for _, pkg := range manifest.Packages {
		report.TotalSize += pkg.Size
	}

	if storage == nil {
		return report, nil
	}

	var local *domain.Manifest
	if raw, err := storage.ReadFile(content.LocationContent, layout.ManifestFile); err == nil {
		local, _ = content.ParseManifest(raw)
	}

	planner := content.NewPlanner(readOnlyChecker{content.NewStorageChecker(storage)}, nil)
	planner.SetReserved(layout.Reserved()...)
	plan := planner.BuildPlan(manifest, local)

	report.Plan = &inspectPlan{
		LocalManifest: local != nil,
		Result:        content.Classify(plan, false),
		Plan:          plan,
	}
	return report, nil
}
