// Command vibe is the CLI entry point wiring together configuration, the
// tool registry, the transactional build engine, the incremental planner
// and the bounded agent controller.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vibecli/vibe-core/internal/agent"
	"github.com/vibecli/vibe-core/internal/build"
	"github.com/vibecli/vibe-core/internal/config"
	"github.com/vibecli/vibe-core/internal/llm/openai"
	"github.com/vibecli/vibe-core/internal/planner"
	"github.com/vibecli/vibe-core/internal/session"
	"github.com/vibecli/vibe-core/internal/tool"
	"github.com/vibecli/vibe-core/internal/tool/builtin"
)

func main() {
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║               vibe_cli                ║")
	fmt.Println("║   goal -> plan -> build, bounded      ║")
	fmt.Println("╚══════════════════════════════════════╝")

	workspaceDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("cannot determine working directory: %v", err)
	}
	if v := os.Getenv("WORKSPACE_DIR"); v != "" {
		workspaceDir = v
	}
	if info, err := os.Stat(workspaceDir); err != nil || !info.IsDir() {
		log.Fatalf("WORKSPACE_DIR %q does not exist or is not a directory", workspaceDir)
	}
	projectRoot := config.DetectProjectRoot(workspaceDir)
	fmt.Printf("workspace: %s\n", workspaceDir)
	fmt.Printf("project root: %s\n", projectRoot)

	cfg, err := config.Load(projectRoot)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	llmClient, err := openai.NewClientFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize LLM client: %v", err)
	}
	fmt.Printf("llm provider: %s\n", llmClient.GetName())

	// The resource enforcer is shared by every tool that forks a subprocess
	// or makes network calls; the policy gate by every registry view derived
	// from this one.
	enforcer := tool.NewEnforcer(cfg.ResourceLimits.MaxNetworkRequests)
	policy := tool.NewEngine(cfg, projectRoot)
	registry := tool.NewRegistry(policy, enforcer)

	registry.Register(builtin.NewFileReadTool(workspaceDir))
	registry.Register(builtin.NewFileWriteTool(workspaceDir))
	registry.Register(builtin.NewDirectoryListTool(workspaceDir))
	registry.Register(builtin.NewFindFilesTool(workspaceDir))
	registry.Register(builtin.NewGrepSearchTool(workspaceDir))
	registry.Register(builtin.NewProcessListTool(enforcer))
	registry.Register(builtin.NewSedReplaceTool(workspaceDir, enforcer))
	registry.Register(builtin.NewAwkExtractTool(workspaceDir, enforcer))
	registry.Register(builtin.NewGitStatusTool(workspaceDir, enforcer))
	registry.Register(builtin.NewGitDiffTool(workspaceDir, enforcer))
	registry.Register(builtin.NewGitLogTool(workspaceDir, enforcer))

	allowInternal := os.Getenv("TOOL_HTTP_ALLOW_INTERNAL") == "true"
	registry.Register(builtin.NewCurlFetchTool(allowInternal, enforcer))

	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		registry.Register(builtin.NewTavilySearchTool(key, enforcer))
		fmt.Println("web search: tavily enabled")
	}

	ctx := context.Background()
	if err := registry.InitAll(ctx); err != nil {
		log.Fatalf("failed to initialize tools: %v", err)
	}
	defer registry.CloseAll()
	fmt.Printf("tools: %d registered\n", len(registry.List()))

	confirmMode := build.Interactive
	if v := os.Getenv("VIBE_CONFIRM"); v != "" {
		switch v {
		case "all":
			confirmMode = build.ConfirmAll
		case "none":
			confirmMode = build.None
		}
	}
	buildEngine := build.NewEngine(workspaceDir, projectRoot, confirmMode, nil)
	buildEngine.DryRun = os.Getenv("VIBE_DRY_RUN") == "true"
	buildEngine.AutoCommit = os.Getenv("VIBE_AUTO_COMMIT") == "true"
	planEngine := planner.New(llmClient, workspaceDir)

	sessionStore := session.NewStore(30*time.Minute, 10)
	defer sessionStore.Close()

	var execLog *agent.ExecLogger
	if cacheDir, err := session.CacheDir(); err == nil {
		if l, err := agent.NewExecLogger(cacheDir + "/last_run.md"); err != nil {
			log.Printf("exec log disabled: %v", err)
		} else {
			execLog = l
			defer execLog.Close()
		}
	}

	// MaxTokenBudget is left disabled (0): spec §4.5 names only iteration
	// count, tool count and wall-clock as hard bounds. ContextWindowTokens
	// still drives the ContextGuard compaction check against the model's
	// real window.
	controller := &agent.Controller{
		Executor:                newGoalExecutor(planEngine, buildEngine, registry),
		MaxIterationsAllowed:    cfg.AgentExecution.MaxIterations,
		MaxToolsPerIteration:    cfg.AgentExecution.MaxToolsPerIteration,
		MaxExecutionTime:        cfg.AgentExecution.MaxExecutionTime,
		TimeBoundsPerIteration:  cfg.AgentExecution.TimeBoundsPerIteration,
		ConvergenceThreshold:    cfg.AgentExecution.ConvergenceThreshold,
		AllowIterationOnFailure: cfg.AgentExecution.AllowIterationOnFailure,
		ContextWindowTokens:     llmClient.GetConfig().ResolveContextWindow(),
		Log:                     execLog,
	}

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Println("usage: vibe <goal>")
		os.Exit(2)
	}
	goal := args[0]
	for _, a := range args[1:] {
		goal += " " + a
	}

	sessionStore.StoreConversation("cli", session.Turn{UserMsg: goal})

	result, err := controller.Run(ctx, goal)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	fmt.Printf("\nresult (confidence %.2f, %d iterations):\n%s\n", result.ConfidenceScore, len(result.History), result.FinalResponse)
}
