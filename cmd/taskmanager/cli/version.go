package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/cathouse/taskmanager/internal/action"
	"github.com/cathouse/taskmanager/internal/model"
)

// buildInfo is what `taskmanager version` reports. Actions and
// environments describe the command API this binary serves.
type buildInfo struct {
	Version         string   `json:"version"`
	Commit          string   `json:"commit"`
	Built           string   `json:"built"`
	GoVersion       string   `json:"go_version"`
	Platform        string   `json:"platform"`
	Actions         []string `json:"actions"`
	KeyEnvironments []string `json:"key_environments"`
}

func newBuildInfo(version, commit, date string) buildInfo {
	if commit == "" || commit == "none" {
		commit = vcsRevision()
	}
	return buildInfo{
		Version:         version,
		Commit:          commit,
		Built:           date,
		GoVersion:       runtime.Version(),
		Platform:        runtime.GOOS + "/" + runtime.GOARCH,
		Actions:         action.NewRegistry(nil).Names(),
		KeyEnvironments: []string{model.EnvironmentProd, model.EnvironmentDev},
	}
}

// vcsRevision falls back to the revision stamped by `go build` when the
// binary was built without ldflags.
func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}

func (b buildInfo) write(w io.Writer) {
	fmt.Fprintf(w, "taskmanager %s\n", b.Version)
	fmt.Fprintf(w, "  commit:   %s\n", b.Commit)
	fmt.Fprintf(w, "  built:    %s\n", b.Built)
	fmt.Fprintf(w, "  go:       %s (%s)\n", b.GoVersion, b.Platform)
	fmt.Fprintf(w, "  actions:  %s\n", strings.Join(b.Actions, ", "))
	fmt.Fprintf(w, "  keys:     sk_{%s}_…\n", strings.Join(b.KeyEnvironments, "|"))
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and command API information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := newBuildInfo(version, commit, date)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			info.write(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
