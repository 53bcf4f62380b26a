package cli

import (
	"github.com/spf13/cobra"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List the organisation's repositories",
	Args:  cobra.NoArgs,
	RunE:  runRepos,
}

func init() {
	rootCmd.AddCommand(reposCmd)
}

func runRepos(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := newOutput()
	cfg := effectiveConfig()

	client, _, err := newClient(cfg)
	if err != nil {
		return out.WriteErr("repos", err)
	}

	names, err := client.ListRepositoryNames(ctx)
	if err != nil {
		return out.WriteErr("repos", err)
	}

	return out.WriteSuccess("repos", repositoryList{
		Organisation: client.Organisation(),
		Repositories: names,
		Configured:   cfg.Repositories,
	})
}
