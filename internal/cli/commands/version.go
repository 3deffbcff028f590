package commands

import (
	"runtime"

	"github.com/spf13/cobra"
)

// versionInfo is the structured form of the version command.
type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildDate string `json:"buildDate" yaml:"build_date"`
	GitCommit string `json:"gitCommit" yaml:"git_commit"`
	GoVersion string `json:"goVersion" yaml:"go_version"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, buildDate, gitCommit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display pine version and build information.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRenderer(cmd, getConfig())
			if err != nil {
				return err
			}
			info := versionInfo{
				Version:   version,
				BuildDate: buildDate,
				GitCommit: gitCommit,
				GoVersion: runtime.Version(),
			}
			if ok, err := r.Structured(info); ok {
				return err
			}
			r.Printf("pine v%s\n", info.Version)
			r.Muted("Pine expression client (commit " + info.GitCommit + ", built " + info.BuildDate + ", " + info.GoVersion + ")")
			return nil
		},
	}
}
