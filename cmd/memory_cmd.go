package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memoria/internal/tools"
)

func memoryCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:     "memory",
		Aliases: []string{"mem"},
		Short:   "Store, search and manage memories from the shell",
	}
	cmd.PersistentFlags().StringVar(&rf.url, "remote", "", "streamable HTTP endpoint of a running server (e.g. http://127.0.0.1:8700/mcp)")
	cmd.PersistentFlags().StringVar(&rf.token, "token", "", "bearer token for --remote (default $MEMORIA_AUTH_TOKEN)")
	cmd.PersistentFlags().StringVar(&rf.clientID, "client-id", "cli", "client id sent to --remote for rate limiting")

	cmd.AddCommand(memoryStoreCmd(&rf))
	cmd.AddCommand(memorySearchCmd(&rf))
	cmd.AddCommand(memoryListCmd(&rf))
	cmd.AddCommand(memoryDeleteCmd(&rf))
	cmd.AddCommand(memoryStatsCmd(&rf))
	return cmd
}

// runTool executes one tool and returns its result. Tool failures become
// command errors; NOT_FOUND is reported but is not a failure.
func runTool(cmd *cobra.Command, rf *remoteFlags, name string, args map[string]any) (*tools.Result, error) {
	reg, cleanup, err := openRegistry(cmd.Context(), *rf)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	res := reg.Execute(cmd.Context(), name, args)
	if res.IsError {
		return res, fmt.Errorf("%s failed: %s", name, errorMessage(res))
	}
	return res, nil
}

// errorMessage extracts error.message from a failed tool result.
func errorMessage(res *tools.Result) string {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(res.Content), &body); err != nil || body.Error.Message == "" {
		return res.Content
	}
	return fmt.Sprintf("%s (%s)", body.Error.Message, body.Error.Code)
}

func printJSON(content string) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(content), "", "  "); err != nil {
		fmt.Println(content)
		return
	}
	fmt.Println(buf.String())
}

func memoryStoreCmd(rf *remoteFlags) *cobra.Command {
	var project, category, metadata string
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]any{
				"content":    args[0],
				"category":   category,
				"project_id": project,
			}
			if metadata != "" {
				var md map[string]any
				if err := json.Unmarshal([]byte(metadata), &md); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
				toolArgs["metadata"] = md
			}
			res, err := runTool(cmd, rf, "store_memory", toolArgs)
			if err != nil {
				return err
			}
			printJSON(res.Content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id (required)")
	cmd.Flags().StringVarP(&category, "category", "c", "note", "category label")
	cmd.Flags().StringVar(&metadata, "metadata", "", `metadata as a JSON object, e.g. '{"file":"main.go"}'`)
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

type searchOutput struct {
	Results []struct {
		ID         string    `json:"id"`
		Category   string    `json:"category"`
		Content    string    `json:"content"`
		Similarity float64   `json:"similarity"`
		CreatedAt  time.Time `json:"created_at"`
	} `json:"results"`
}

func memorySearchCmd(rf *remoteFlags) *cobra.Command {
	var project, category string
	var limit int
	var threshold float64
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search within a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]any{
				"query":                args[0],
				"project_id":           project,
				"limit":                limit,
				"similarity_threshold": threshold,
			}
			if category != "" {
				toolArgs["category"] = category
			}
			res, err := runTool(cmd, rf, "search_memories", toolArgs)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(res.Content)
				return nil
			}

			var out searchOutput
			if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			if len(out.Results) == 0 {
				fmt.Println("No memories above the threshold.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "SIMILARITY\tID\tCATEGORY\tCONTENT\n")
			for _, r := range out.Results {
				fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", r.Similarity, r.ID, r.Category, truncate(r.Content, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id (required)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only this category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "maximum results (1-50)")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.5, "minimum similarity, exclusive (0-1)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

type listEntry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func memoryListCmd(rf *remoteFlags) *cobra.Command {
	var project, category string
	var limit, offset int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's memories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]any{
				"project_id": project,
				"limit":      limit,
				"offset":     offset,
			}
			if category != "" {
				toolArgs["category"] = category
			}
			res, err := runTool(cmd, rf, "list_memories", toolArgs)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(res.Content)
				return nil
			}

			var entries []listEntry
			if err := json.Unmarshal([]byte(res.Content), &entries); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No memories found.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "CREATED\tID\tCATEGORY\tCONTENT\n")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04"), e.ID, e.Category, truncate(e.Content, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id (required)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only this category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "page size (1-100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func memoryDeleteCmd(rf *remoteFlags) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "delete [memory-id]",
		Short: "Delete a memory owned by the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runTool(cmd, rf, "delete_memory", map[string]any{
				"memory_id":  args[0],
				"project_id": project,
			})
			if err != nil {
				return err
			}
			printJSON(res.Content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id (required)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func memoryStatsCmd(rf *remoteFlags) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the number of memories in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runTool(cmd, rf, "get_project_stats", map[string]any{"project_id": project})
			if err != nil {
				return err
			}
			printJSON(res.Content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id (required)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

// truncate shortens s to at most n runes, flattening newlines for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
