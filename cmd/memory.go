package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	lberrors "github.com/theapemachine/longbow-go/pkg/errors"
	"github.com/theapemachine/longbow-go/pkg/memory"
	"github.com/theapemachine/longbow-go/pkg/transport"
)

var (
	clientIDFlag   string
	metaFlags      []string
	topKFlag       int
	alphaFlag      float64
	filterFlags    []string
	limitFlag      int
	offsetFlag     int
	predicateFlag  string
	weightFlag     float64
	hopsFlag       int
	incomingFlag   bool
	decayFlag      float64
	unweightedFlag bool

	addCmd = &cobra.Command{
		Use:   "add [content]",
		Short: "Embed and store a new memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMeta(metaFlags)
			if err != nil {
				return err
			}

			mem, err := newStore().AddMemory(cmd.Context(), args[0], clientIDFlag, metadata)
			if err != nil {
				return err
			}

			fmt.Printf("stored %s\n", mem.ID)
			return nil
		},
	}

	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by similarity, hybrid scoring or filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := newStore()

			var (
				results []memory.SearchResult
				err     error
			)

			switch {
			case cmd.Flags().Changed("alpha"):
				results, err = store.HybridSearch(cmd.Context(), args[0], topKFlag, alphaFlag)
			case len(filterFlags) > 0:
				var filters []transport.Predicate
				if filters, err = parseFilters(filterFlags); err != nil {
					return err
				}
				results, err = store.FilteredSearch(cmd.Context(), args[0], topKFlag, filters)
			default:
				results, err = store.Search(cmd.Context(), args[0], topKFlag)
			}
			if err != nil {
				return err
			}

			printResults(results)
			return nil
		},
	}

	similarCmd = &cobra.Command{
		Use:   "similar [memory-id]",
		Short: "Find memories similar to an existing memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := newStore().SearchByID(cmd.Context(), args[0], topKFlag)
			if err != nil {
				return err
			}

			printResults(results)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			memories, total, err := newStore().ListMemories(cmd.Context(), limitFlag, offsetFlag)
			if err != nil {
				return err
			}

			for _, mem := range memories {
				fmt.Printf("%s  %s  [%s] %s\n",
					mem.CreatedAt.Format(time.RFC3339), mem.ID, mem.ClientID, mem.Content)
			}
			fmt.Printf("%d of %d memories\n", len(memories), total)
			return nil
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show namespace statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := newStore().Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("total:    %d\n", stats.TotalMemories)
			fmt.Printf("clients:  %d\n", stats.UniqueClients)
			fmt.Printf("oldest:   %s\n", stats.OldestMemory)
			fmt.Printf("newest:   %s\n", stats.NewestMemory)
			fmt.Printf("backend:  %s\n", stats.Backend)
			return nil
		},
	}

	purgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Delete every memory in the namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := newStore().DeleteAll(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("deleted %d memories\n", count)
			return nil
		},
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Trigger a manual persistence snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newStore().Snapshot(cmd.Context())
		},
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Show raw namespace info from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := newStore().Info(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("records: %d\nbytes:   %d\n", info.TotalRecords, info.TotalBytes)
			return nil
		},
	}

	linkCmd = &cobra.Command{
		Use:   "link [source-id] [target-id]",
		Short: "Add a directed relationship edge between two memories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newStore().AddEdge(cmd.Context(), args[0], args[1], predicateFlag, weightFlag)
		},
	}

	traverseCmd = &cobra.Command{
		Use:   "traverse [memory-id]",
		Short: "Walk the relationship graph from a memory",
		Long: `Walk the relationship graph outward (or inward with --incoming) from a
memory. Results are node ids in the store's native integer space, not
memory UUIDs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := newStore().Traverse(cmd.Context(), args[0], memory.TraverseOptions{
				MaxHops:  hopsFlag,
				Incoming: incomingFlag,
				Decay:    decayFlag,
				Weighted: !unweightedFlag,
			})
			if err != nil {
				return err
			}

			for _, node := range results {
				fmt.Printf("node %d  score %.4f  hops %d\n", node.Node, node.Score, node.Hops)
			}
			return nil
		},
	}
)

func init() {
	addCmd.Flags().StringVar(&clientIDFlag, "client", "", "client id recorded with the memory")
	addCmd.Flags().StringArrayVar(&metaFlags, "meta", nil, "metadata entry as key=value (repeatable)")

	for _, cmd := range []*cobra.Command{searchCmd, similarCmd} {
		cmd.Flags().IntVar(&topKFlag, "top-k", 5, "number of results")
	}
	searchCmd.Flags().Float64Var(&alphaFlag, "alpha", 0.5, "hybrid blend factor; setting it enables hybrid search")
	searchCmd.Flags().StringArrayVar(&filterFlags, "filter", nil, "metadata predicate as field:operator:value (repeatable)")

	listCmd.Flags().IntVar(&limitFlag, "limit", 50, "maximum memories to return")
	listCmd.Flags().IntVar(&offsetFlag, "offset", 0, "memories to skip")

	linkCmd.Flags().StringVar(&predicateFlag, "predicate", memory.DefaultPredicate, "edge label")
	linkCmd.Flags().Float64Var(&weightFlag, "weight", 1.0, "edge weight (non-negative)")

	traverseCmd.Flags().IntVar(&hopsFlag, "hops", 2, "maximum hops from the start memory")
	traverseCmd.Flags().BoolVar(&incomingFlag, "incoming", false, "follow reverse edges")
	traverseCmd.Flags().Float64Var(&decayFlag, "decay", 0.0, "per-hop score decay in [0,1]")
	traverseCmd.Flags().BoolVar(&unweightedFlag, "unweighted", false, "ignore edge weights during traversal")

	rootCmd.AddCommand(
		addCmd, searchCmd, similarCmd, listCmd, statsCmd,
		purgeCmd, snapshotCmd, infoCmd, linkCmd, traverseCmd,
	)
}

func newStore() *memory.Store {
	v := viper.GetViper()

	options := []memory.StoreOption{}
	if namespace := v.GetString("longbow.namespace"); namespace != "" {
		options = append(options, memory.WithNamespace(namespace))
	}
	if v.GetString("embedding.provider") == "mock" {
		options = append(options, memory.WithEmbedder(memory.NewMockEmbedder(memory.EmbeddingDim)))
	}

	retry := lberrors.DefaultRetryConfig()
	if attempts := v.GetInt("longbow.connect.max_attempts"); attempts > 0 {
		retry.MaxAttempts = attempts
	}
	if delay := v.GetInt("longbow.connect.delay_seconds"); delay > 0 {
		retry.InitialDelay = time.Duration(delay) * time.Second
		retry.MaxDelay = retry.InitialDelay
	}

	client := transport.New(
		v.GetString("longbow.data_uri"),
		v.GetString("longbow.meta_uri"),
		transport.WithRetryConfig(retry),
	)
	options = append(options, memory.WithTransport(client))

	return memory.NewStore("", "", options...)
}

func parseMeta(entries []string) (map[string]string, error) {
	metadata := map[string]string{}
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --meta entry %q, want key=value", entry)
		}
		metadata[key] = value
	}
	return metadata, nil
}

func parseFilters(entries []string) ([]transport.Predicate, error) {
	filters := make([]transport.Predicate, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, errors.New("invalid --filter entry, want field:operator:value")
		}
		filters = append(filters, transport.Predicate{Field: parts[0], Operator: parts[1], Value: parts[2]})
	}
	return filters, nil
}

func printResults(results []memory.SearchResult) {
	for _, result := range results {
		fmt.Printf("%.4f  %s  [%s] %s\n",
			result.Score, result.Memory.ID, result.Memory.ClientID, result.Memory.Content)
	}
	if len(results) == 0 {
		fmt.Println("no results")
	}
}
