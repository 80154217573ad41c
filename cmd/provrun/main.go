package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/systemstart/provision-runner/pkg/api"
	"github.com/systemstart/provision-runner/pkg/logging"
	"github.com/systemstart/provision-runner/pkg/provision"
	"github.com/systemstart/provision-runner/pkg/steps"
)

var version = "dev"

// Exit codes. Automated provisioning tooling inspects these, so every
// failure class keeps its own code.
const (
	_ = iota
	exitRecipeNotSpecified
	exitDotenvError
	exitLoadRecipeFailed
	exitLoadContextFailed
	exitScratchDirFailed
	exitFetchFailed
	exitExtractFailed
	exitPackageInstallFailed
	exitBundleInstallFailed
	exitConfigRenderFailed
	exitPipelineFailed
)

var (
	recipeFile  string
	scratchDir  string
	contextFile string
	dryRun      bool
	loggingType string
	logLevel    string
	logSource   bool
	showVersion bool
)

func init() {
	flag.StringVar(
		&recipeFile,
		"recipe",
		"",
		"provisioning recipe YAML file")
	flag.StringVar(
		&scratchDir,
		"scratch-dir",
		"",
		"directory for transient artifacts (default: a fresh temp directory)")
	flag.StringVar(
		&contextFile,
		"context-file",
		"",
		"global context YAML file")
	flag.BoolVar(
		&dryRun,
		"dry-run",
		false,
		"list the steps that would run, then exit")
	flag.StringVar(
		&loggingType,
		"logging-type",
		"tint",
		"logging type: json, text or tint")
	flag.StringVar(
		&logLevel,
		"log-level",
		"info",
		"logging level: debug, info, warn, error")
	flag.BoolVar(
		&logSource,
		"log-source",
		false,
		"annotate log lines with source locations")
	flag.BoolVar(
		&showVersion,
		"version",
		false,
		"print version and exit")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	_ = logging.Initialize(loggingType, logLevel, logSource)

	includeEnv()

	recipe := loadRecipe()
	globalContext := loadGlobalContext()

	if dryRun {
		fmt.Print(provision.Describe(recipe))
		return
	}

	runner := provision.NewRunner(ensureScratchDir(), globalContext)

	result, err := runner.Run(recipe)
	if err != nil {
		slog.Error("provisioning failed",
			"step", result.Failure.Step,
			"completed", len(result.CompletedSteps),
			"error", err)
		os.Exit(exitCode(err))
	}

	slog.Info("provisioning complete", "steps", len(result.CompletedSteps))
}

// exitCode maps the step error taxonomy onto distinct exit codes.
func exitCode(err error) int {
	var (
		fetchErr     *steps.FetchError
		extractErr   *steps.ExtractionError
		structureErr *steps.StructureError
		packageErr   *steps.PackageError
		installErr   *steps.InstallError
		configErr    *steps.ConfigError
	)
	switch {
	case errors.As(err, &fetchErr):
		return exitFetchFailed
	case errors.As(err, &extractErr), errors.As(err, &structureErr):
		return exitExtractFailed
	case errors.As(err, &packageErr):
		return exitPackageInstallFailed
	case errors.As(err, &installErr):
		return exitBundleInstallFailed
	case errors.As(err, &configErr):
		return exitConfigRenderFailed
	default:
		return exitPipelineFailed
	}
}

func loadRecipe() *api.Recipe {
	if recipeFile == "" {
		slog.Error("-recipe not set")
		os.Exit(exitRecipeNotSpecified)
	}

	recipe, err := api.LoadRecipe(recipeFile)
	if err != nil {
		slog.Error("failed to load recipe", "filename", recipeFile, "error", err)
		os.Exit(exitLoadRecipeFailed)
	}
	return recipe
}

func loadGlobalContext() map[string]any {
	if contextFile == "" {
		return nil
	}

	ctx, err := provision.LoadContextFile(contextFile)
	if err != nil {
		slog.Error("failed to load context file", "filename", contextFile, "error", err)
		os.Exit(exitLoadContextFailed)
	}
	return ctx
}

// ensureScratchDir resolves the directory for transient artifacts. It is
// never removed automatically: cleanup is a recipe step, and a failed
// run should leave its artifacts in place for diagnosis.
func ensureScratchDir() string {
	if scratchDir == "" {
		dir, err := os.MkdirTemp("", "provrun-*")
		if err != nil {
			slog.Error("failed to create scratch directory", "error", err)
			os.Exit(exitScratchDirFailed)
		}
		slog.Info("using scratch directory", "directory", dir)
		return dir
	}

	if err := os.MkdirAll(scratchDir, 0o750); err != nil {
		slog.Error("failed to create scratch directory", "directory", scratchDir, "error", err)
		os.Exit(exitScratchDirFailed)
	}
	return scratchDir
}

func includeEnv() {
	err := godotenv.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to load .env", "error", err)
			os.Exit(exitDotenvError)
		}
		slog.Debug("no .env file found")
	} else {
		slog.Info("using .env file")
	}
}
