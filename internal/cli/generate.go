package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harun/metagen/internal/tracing"
	"github.com/harun/metagen/pkg/agent"
	"github.com/harun/metagen/pkg/toolclient"
	"github.com/harun/metagen/pkg/toolserver"
	"github.com/spf13/cobra"
)

var generateFilename string

var generateCmd = &cobra.Command{
	Use:   "generate-metadata",
	Short: "Generate dataset metadata for a file",
	Long: `Generate dataset metadata for a file with an agent that calls the tools
served by 'metagen serve'. The agent reads the metadata schema, previews the
file and answers with a JSON document.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateFilename, "filename", "f", "", "dataset file to describe")
	_ = generateCmd.MarkFlagRequired("filename")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(generateFilename); err != nil {
		return fmt.Errorf("file %s: %w", generateFilename, err)
	}

	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	resp := generateMetadata(ctx, env, generateFilename, out)
	printResponse(out, resp)

	// Failures inside the flow are reported, not returned.
	return nil
}

func generateMetadata(ctx context.Context, env *environment, filename string, out io.Writer) agent.Response {
	start := time.Now()
	ctx = tracing.WithResource(ctx, filename)
	log := tracing.LoggerFromContext(ctx, env.log.Component("generate"))

	client, err := toolclient.Dial(ctx, env.cfg.Tools.URL, toolclient.Options{
		CallTimeout:   env.cfg.Tools.CallTimeout(),
		ClientName:    "metagen",
		ClientVersion: version,
		Logger:        env.log.Component("toolclient"),
	})
	if err != nil {
		return agent.FailureResponse(err, time.Since(start))
	}
	defer client.Close()

	tools, err := client.Discover(ctx)
	if err != nil {
		return agent.FailureResponse(err, time.Since(start))
	}

	provider, err := agent.NewProvider(env.cfg.LLM)
	if err != nil {
		return agent.FailureResponse(err, time.Since(start))
	}

	session, err := agent.NewSession(agent.SessionConfig{
		Provider:      provider,
		Tools:         tools,
		Invoker:       client,
		Model:         env.cfg.LLM.Model,
		Temperature:   env.cfg.LLM.Temperature,
		MaxTokens:     env.cfg.LLM.MaxTokens,
		ContextWindow: env.cfg.LLM.ContextWindow,
		Think:         env.cfg.LLM.Thinking,
		Logger:        env.log.Component("session"),
	})
	if err != nil {
		return agent.FailureResponse(err, time.Since(start))
	}

	orch, err := agent.NewOrchestrator(agent.OrchestratorConfig{
		MaxIterations: env.cfg.Agent.MaxIterations,
		Reporter:      consoleReporter{out: out},
		Logger:        env.log.Component("agent"),
	})
	if err != nil {
		return agent.FailureResponse(err, time.Since(start))
	}

	blue.Fprintf(out, "Creating agent with available tools: %s\n\n", strings.Join(session.ToolNames(), ", "))

	instruction := agent.MetadataInstruction(filename)
	yellow.Fprintf(out, "Handling user message: %s\n\n", instruction)

	resp := orch.Run(ctx, session, instruction)
	for name, stats := range resp.ToolStats {
		log.Debug().
			Str("tool", name).
			Int("calls", stats.Count).
			Dur("mean", stats.Mean()).
			Dur("max", stats.Max).
			Msg("Tool latency")
	}
	return resp
}

// printResponse prints the answer in green, or the failure message in red.
// A JSON answer that does not satisfy the metadata schema gets a yellow
// warning after it.
func printResponse(out io.Writer, resp agent.Response) {
	if !resp.OK() {
		red.Fprintln(out, resp.Message)
		return
	}

	green.Fprintln(out, resp.Text)

	doc, ok := agent.ExtractJSON(resp.Text)
	if !ok {
		yellow.Fprintln(out, "Warning: the answer does not contain a JSON document")
		return
	}
	if err := toolserver.ValidateMetadata(doc); err != nil {
		yellow.Fprintf(out, "Warning: the metadata does not match the schema: %v\n", err)
	}
}
