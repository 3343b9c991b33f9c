package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daimatz/jvmload/pkg/classfile"
	"github.com/daimatz/jvmload/pkg/classloader"
	"github.com/daimatz/jvmload/pkg/config"
	"github.com/daimatz/jvmload/pkg/diag"
)

const version = "0.1.0"

type options struct {
	configFile string
	classPath  string
	jmodPath   string
	verbose    bool
	vverbose   bool
	failFast   bool
}

// run executes the command line args after merging in the option
// environment variables.
func run(args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	merged := config.MergeEnvOptions(args, getenv)
	cmd := newRootCmd(getenv, stdout, stderr)
	cmd.SetArgs(javaStyleFlags(merged))
	return cmd.ExecuteContext(context.Background())
}

// javaStyleFlags rewrites the single-dash spellings java accepts.
func javaStyleFlags(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch a {
		case "-cp", "-classpath":
			a = "--classpath"
		case "-verbose", "-verbose:class":
			a = "--verbose"
		}
		out[i] = a
	}
	return out
}

func newRootCmd(getenv func(string) string, stdout, stderr io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "jvmload [flags] <class>...",
		Short: "Decode and check Java class files",
		Long: `jvmload reads Java class files, validates their constant pool, fields,
methods and bytecode structure, and prints a summary of each class.

Classes are given as binary names (java/lang/String) looked up on the
class path, or as paths ending in .class.`,
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			UnknownFlags: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd.Context(), opts, args, getenv, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "config file (YAML/JSON)")
	f.StringVar(&opts.classPath, "classpath", "", "class path entries separated by "+string(filepath.ListSeparator))
	f.StringVar(&opts.classPath, "cp", "", "shorthand for --classpath")
	f.StringVar(&opts.jmodPath, "jmod", "", "path to java.base.jmod for bootstrap classes")
	f.BoolVar(&opts.verbose, "verbose", false, "log class loading at INFO")
	f.BoolVar(&opts.vverbose, "vverbose", false, "log every decoding step")
	f.BoolVar(&opts.failFast, "fail-fast", false, "stop at the first class that fails to load")
	return cmd
}

// settings folds the config file and flags into one Config.
func settings(opts options, getenv func(string) string) (*config.Config, error) {
	cfg := config.New()
	if opts.configFile != "" {
		if err := cfg.LoadFile(opts.configFile); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if opts.classPath != "" {
		cfg.ClassPath = filepath.SplitList(opts.classPath)
	}
	if opts.jmodPath != "" {
		cfg.JmodPath = opts.jmodPath
	}
	if cfg.JmodPath == "" {
		cfg.JmodPath = findJmodPath(getenv)
	}
	if opts.failFast {
		cfg.FailFast = true
	}
	switch {
	case opts.vverbose:
		cfg.LogLevel = diag.Finest.String()
	case opts.verbose:
		cfg.LogLevel = diag.Info.String()
	}
	return cfg, nil
}

// supplierFor maps one class path entry to a byte supplier.
func supplierFor(entry string) classloader.ByteSupplier {
	switch strings.ToLower(filepath.Ext(entry)) {
	case ".jar", ".jmod", ".zip":
		return classloader.NewJmodSupplier(entry)
	}
	return classloader.DirSupplier{Dir: entry}
}

func newLoaders(cfg *config.Config, sink diag.Sink) *classloader.Loader {
	var boot *classloader.Loader
	if cfg.JmodPath != "" {
		boot = classloader.New("bootstrap", classloader.NewJmodSupplier(cfg.JmodPath), nil)
		boot.MaxMajorVersion = cfg.MaxMajorVersion
		boot.Sink = sink
	}

	var chain classloader.ChainSupplier
	for _, entry := range cfg.ClassPath {
		chain = append(chain, supplierFor(entry))
	}
	app := classloader.New("app", chain, boot)
	app.MaxMajorVersion = cfg.MaxMajorVersion
	app.Sink = sink
	app.Concurrency = cfg.Concurrency
	app.FailFast = cfg.FailFast
	return app
}

func load(ctx context.Context, opts options, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	cfg, err := settings(opts, getenv)
	if err != nil {
		return err
	}
	sink := diag.New(stderr, cfg.Level())
	sink.Log(diag.Fine, "command line", "args", strings.Join(args, " "))

	names := make([]string, len(args))
	for i, arg := range args {
		if strings.HasSuffix(arg, ".class") {
			root, name, err := classFileRoot(arg)
			if err != nil {
				return err
			}
			cfg.ClassPath = append(cfg.ClassPath, root)
			names[i] = name
			continue
		}
		names[i] = strings.ReplaceAll(arg, ".", "/")
	}

	loader := newLoaders(cfg, sink)
	classes, err := loader.LoadAll(ctx, names)
	for _, cf := range classes {
		if cf != nil {
			printSummary(stdout, cf)
		}
	}
	if err != nil {
		return fmt.Errorf("loading classes: %w", err)
	}
	return nil
}

// classFileRoot splits a .class path into the class path root and the
// class name, using the name the file declares. out/com/x/Foo.class
// declaring com/x/Foo yields out and com/x/Foo. Files that cannot be read
// or decoded fall back to their directory and base name so that loading
// reports the failure.
func classFileRoot(path string) (string, string, error) {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), ".class")
	data, err := os.ReadFile(path)
	if err != nil {
		return dir, base, nil
	}
	name, err := classfile.DeclaredName(data)
	if err != nil {
		return dir, base, nil
	}

	clean := filepath.Clean(path)
	suffix := filepath.FromSlash(name) + ".class"
	if clean == suffix {
		return ".", name, nil
	}
	if !strings.HasSuffix(clean, string(filepath.Separator)+suffix) {
		return "", "", fmt.Errorf("%s declares class %s and must be stored as <classpath>%c%s", path, name, filepath.Separator, suffix)
	}
	root := strings.TrimSuffix(clean, string(filepath.Separator)+suffix)
	if root == "" {
		root = string(filepath.Separator)
	}
	return root, name, nil
}

func printSummary(w io.Writer, cf *classfile.ClassFile) {
	fmt.Fprintf(w, "%s\n", cf.Name)
	superName := cf.SuperName
	if superName == "" {
		superName = "-"
	}
	fmt.Fprintf(w, "  super:      %s\n", superName)
	fmt.Fprintf(w, "  version:    %d.%d\n", cf.MajorVersion, cf.MinorVersion)
	fmt.Fprintf(w, "  flags:      %s\n", cf.AccessFlags.ClassString())
	if cf.SourceFile != "" {
		fmt.Fprintf(w, "  source:     %s\n", cf.SourceFile)
	}
	fmt.Fprintf(w, "  interfaces: %d\n", len(cf.InterfaceNames))
	fmt.Fprintf(w, "  fields:     %d\n", len(cf.Fields))
	fmt.Fprintf(w, "  methods:    %d\n", len(cf.Methods))
}
