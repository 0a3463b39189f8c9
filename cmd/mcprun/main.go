// mcprun is the command-line front end for the command dispatch runtime.
// It executes single commands or runs an interactive session against a
// local runtime instance.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/modelctl/mcprun/pkg/config"
	"github.com/modelctl/mcprun/pkg/logger"
	"github.com/modelctl/mcprun/pkg/metrics"
	"github.com/modelctl/mcprun/pkg/runtime"
	"github.com/modelctl/mcprun/pkg/types"
)

var (
	configPath  = flag.String("config", "", "Path to runtime configuration file (YAML or JSON)")
	logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	username    = flag.String("user", "", "Authenticate as this user before executing")
	password    = flag.String("password", "", "Password for -user (or set MCPRUN_PASSWORD)")
	execCommand = flag.String("exec", "", "Execute a single command string and exit")
	interactive = flag.Bool("interactive", false, "Run an interactive command session")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const version = "1.0.0"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mcprun %s\n", version)
		return
	}
	if *execCommand == "" && !*interactive {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.DefaultRuntimeConfig()
	if *configPath != "" {
		if err := cfg.FromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logger.NewConsoleLogger(cfg.LogLevel)
	rt := runtime.New(cfg, log, metrics.NewNoOpMetrics())
	if err := runtime.RegisterBuiltins(rt); err != nil {
		log.Fatal("failed to register built-in modules", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := rt.Initialize(ctx, nil); err != nil {
		log.Fatal("failed to initialize runtime", err)
	}
	defer func() {
		if err := rt.Shutdown(context.Background()); err != nil {
			log.Error("runtime shutdown failed", err)
		}
	}()

	cctx := &types.CommandContext{SessionID: uuid.New().String()}
	if *username != "" {
		authenticate(rt, cctx)
	}

	if *execCommand != "" {
		result := rt.ExecuteCommand(ctx, *execCommand, cctx)
		printResult(result)
		if !result.Success {
			if err := rt.Shutdown(context.Background()); err != nil {
				log.Error("runtime shutdown failed", err)
			}
			os.Exit(1)
		}
		return
	}

	runInteractive(ctx, rt, cctx)
}

// authenticate logs the -user in against the runtime's security manager
// and marks the session authenticated.
func authenticate(rt *runtime.Runtime, cctx *types.CommandContext) {
	sec := rt.Security()
	if sec == nil {
		fmt.Fprintln(os.Stderr, "-user given but security is disabled")
		os.Exit(1)
	}

	pass := *password
	if pass == "" {
		pass = os.Getenv("MCPRUN_PASSWORD")
	}
	res, err := sec.Authenticate(*username, pass)
	if err != nil {
		fmt.Fprintf(os.Stderr, "authentication failed: %v\n", err)
		os.Exit(1)
	}
	cctx.UserID = res.UserID
	cctx.Security = types.SecurityContext{IsAuthenticated: true, Token: res.Token}
}

func runInteractive(ctx context.Context, rt *runtime.Runtime, cctx *types.CommandContext) {
	color.Cyan("mcprun %s interactive session", version)
	fmt.Println("Type \"module.command key=value ...\", or \"exit\" to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		result := rt.ExecuteCommand(ctx, line, cctx)
		printResult(result)
		updateSession(rt, cctx, line, result)
	}
}

// updateSession captures the token from a successful auth.login so that
// subsequent commands in the session run authenticated, and clears it on
// auth.logout.
func updateSession(rt *runtime.Runtime, cctx *types.CommandContext, line string, result *types.CommandResult) {
	if !result.Success {
		return
	}
	head := strings.Fields(line)[0]

	switch head {
	case "auth.login":
		data, ok := result.Data.(map[string]interface{})
		if !ok {
			return
		}
		token, _ := data["token"].(string)
		userID, _ := data["userId"].(string)
		if token == "" {
			return
		}
		cctx.UserID = userID
		cctx.Security = types.SecurityContext{IsAuthenticated: true, Token: token}
		color.Green("session authenticated as %s", userID)
	case "auth.logout":
		cctx.UserID = ""
		cctx.Security = types.SecurityContext{}
	}
}

func printResult(result *types.CommandResult) {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		color.Red("failed to render result: %v", err)
		return
	}
	if result.Success {
		color.Green("%s", encoded)
	} else {
		color.Red("%s", encoded)
	}
}
