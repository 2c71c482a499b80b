// Package app builds the standard command-line application structure:
// cobra command, sectioned flags, viper config binding and a run function.
package app

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/pkg/logger"
	"github.com/loomhq/loom/pkg/utils/cliflag"
	"github.com/loomhq/loom/pkg/version"
)

// RunFunc defines the application's startup callback function.
type RunFunc func(basename string) error

// CliOptions abstracts configuration options for reading from the
// command line and validation.
type CliOptions interface {
	Flags() cliflag.NamedFlagSets
	Validate() []error
}

// CompleteableOptions is implemented by options that fill defaults.
type CompleteableOptions interface {
	Complete() error
}

// App is the main structure of a cli application.
type App struct {
	name        string
	basename    string
	description string
	options     CliOptions
	runFunc     RunFunc
	silence     bool
	noConfig    bool
	cmdArgs     cobra.PositionalArgs
	cmd         *cobra.Command
}

// Option defines optional parameters for initializing the application.
type Option func(*App)

// WithOptions opens the application's function to read from the command line.
func WithOptions(opt CliOptions) Option {
	return func(a *App) { a.options = opt }
}

// WithRunFunc sets the application startup callback function.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDescription sets the description of the application.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithSilence disables the startup banner and config printing.
func WithSilence() Option {
	return func(a *App) { a.silence = true }
}

// WithNoConfig disables the --config flag.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithDefaultValidArgs rejects any positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.cmdArgs = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// cmdArgs holds the positional-argument validator, settable by options.
// Declared on App to keep Option signatures uniform.
func (a *App) applyArgs(cmd *cobra.Command) {
	if a.cmdArgs != nil {
		cmd.Args = a.cmdArgs
	}
}

// NewApp creates a new application instance.
func NewApp(name string, basename string, opts ...Option) *App {
	a := &App{
		name:     name,
		basename: basename,
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.basename,
		Short:         a.name,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.applyArgs(cmd)
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
		for _, name := range namedFlagSets.Order {
			cmd.Flags().AddFlagSet(namedFlagSets.FlagSets[name])
		}
	}

	if !a.noConfig {
		addConfigFlag(a.basename, namedFlagSets.FlagSet("global"))
		cmd.Flags().AddFlagSet(namedFlagSets.FlagSet("global"))
	}
	addVersionFlag(namedFlagSets.FlagSet("global"))

	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		fmt.Fprintf(c.OutOrStdout(), "%s\n", c.Long)
		cliflag.PrintSections(c.OutOrStdout(), namedFlagSets, 0)
	})

	cmd.RunE = a.runCommand

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	printVersionAndExitIfRequested()

	if !a.silence {
		logger.Info("%v Starting %s ...", progressMessage, a.name)
		logger.Info("%v Version: %s", progressMessage, version.Get().GitVersion)
	}

	if !a.noConfig {
		if err := bindConfig(cmd, a.options); err != nil {
			return err
		}
	}

	if a.options != nil {
		if completeable, ok := a.options.(CompleteableOptions); ok {
			if err := completeable.Complete(); err != nil {
				return err
			}
		}
		if errs := a.options.Validate(); len(errs) != 0 {
			return mergeErrors(errs)
		}
	}

	if a.runFunc != nil {
		return a.runFunc(a.basename)
	}
	return nil
}

// Run launches the application.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// Command returns the cobra command inside the application.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

var progressMessage = color.GreenString("==>")

func mergeErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := ""
	for i, err := range errs {
		if i > 0 {
			msg += ", "
		}
		msg += err.Error()
	}
	return fmt.Errorf("%s", msg)
}
