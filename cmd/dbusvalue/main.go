package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/danderson/dbusvalue"
	"github.com/kr/pretty"
	"go.uber.org/zap"
)

var globalArgs struct {
	Verbose bool `flag:"verbose,Log encoder and decoder construction to stderr"`
}

var inputArgs struct {
	Format string `flag:"format,default=json,Input format: json, yaml or cbor"`
	Check  bool   `flag:"check,Validate the encoded tree's signatures"`
}

func main() {
	root := &command.C{
		Name:     "dbusvalue",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "signature",
				Usage: "signature sig...",
				Help: `Parse DBus type signatures.

Each argument is validated, split into its complete types, and each
complete type is printed along with the Go type that DecodeAny
produces for it.`,
				Run: runSignature,
			},
			{
				Name:  "encode",
				Usage: "encode [file]",
				Help: `Encode a document as a DBus value tree.

The document is read from the named file, or stdin if no file is
given. JSON input may contain comments and trailing commas.

Integers become int64 (x), or uint64 (t) if they are too large. Other
numbers become float64 (d). Objects become a{sv} dictionaries, and
lists become arrays of variants.`,
				SetFlags: command.Flags(flax.MustBind, &inputArgs),
				Run:      runEncode,
			},
			{
				Name:     "roundtrip",
				Usage:    "roundtrip [file]",
				Help:     "Encode a document as a DBus value tree, then decode it back into Go values.",
				SetFlags: command.Flags(flax.MustBind, &inputArgs),
				Run:      runRoundtrip,
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func setupLogging() error {
	if !globalArgs.Verbose {
		return nil
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	dbusvalue.SetLogger(logger)
	return nil
}

func runSignature(env *command.Env) error {
	if err := setupLogging(); err != nil {
		return err
	}
	if len(env.Args) == 0 {
		return env.Usagef("no signatures given")
	}

	out := newIndenter(os.Stdout)
	for _, arg := range env.Args {
		sig, err := dbusvalue.ParseSignature(arg)
		if err != nil {
			return err
		}
		parts, err := sig.Split()
		if err != nil {
			return err
		}
		out.indent(0)
		out.f("%q: %d complete types", sig, len(parts))
		out.indent(1)
		for _, part := range parts {
			t, err := part.Type()
			if err != nil {
				return err
			}
			out.f("%s => %s", part, t)
		}
	}
	return nil
}

// encodeInput reads, parses and encodes the document named by
// env.Args.
func encodeInput(env *command.Env) (dbusvalue.Value, error) {
	if err := setupLogging(); err != nil {
		return nil, err
	}
	var path string
	switch len(env.Args) {
	case 0:
	case 1:
		path = env.Args[0]
	default:
		return nil, env.Usagef("extra arguments after file: %q", env.Args[1:])
	}

	bs, err := readInput(path)
	if err != nil {
		return nil, err
	}
	doc, err := loadDocument(inputArgs.Format, bs)
	if err != nil {
		return nil, err
	}
	v, err := dbusvalue.Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	if inputArgs.Check {
		if err := dbusvalue.Check(v); err != nil {
			return nil, fmt.Errorf("encoded tree is invalid: %w", err)
		}
	}
	return v, nil
}

func runEncode(env *command.Env) error {
	v, err := encodeInput(env)
	if err != nil {
		return err
	}
	out := newIndenter(os.Stdout)
	out.f("Signature: %s", v.SignatureDBus())
	printTree(out, v, 0)
	return nil
}

func runRoundtrip(env *command.Env) error {
	v, err := encodeInput(env)
	if err != nil {
		return err
	}
	native, err := dbusvalue.DecodeAny(v)
	if err != nil {
		return fmt.Errorf("decoding tree: %w", err)
	}
	fmt.Printf("Signature: %s\n%# v\n", v.SignatureDBus(), pretty.Formatter(native))
	return nil
}
