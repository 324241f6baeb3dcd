package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/capnp-layout/codec"
	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/layout"
	"github.com/wippyai/capnp-layout/schema"
	"github.com/wippyai/capnp-layout/witbridge"
)

type config struct {
	schemaFile string
	structName string
	encodeFile string
	decodeFile string
	outFile    string
	asJSON     bool
	wit        bool
	verbose    bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.schemaFile, "schema", "", "Path to schema JSON file")
	flag.StringVar(&cfg.structName, "struct", "", "Struct to show, encode or decode (dotted name)")
	flag.StringVar(&cfg.encodeFile, "encode", "", "Encode the value literal in this JSON file (- for stdin)")
	flag.StringVar(&cfg.decodeFile, "decode", "", "Decode the framed message in this file (- for stdin)")
	flag.StringVar(&cfg.outFile, "o", "", "Write the encoded message here instead of stdout")
	flag.BoolVar(&cfg.asJSON, "json", false, "Print decoded values as tagged JSON")
	flag.BoolVar(&cfg.wit, "wit", false, "Print the canonical ABI size of the struct's WIT projection")
	flag.BoolVar(&cfg.verbose, "v", false, "Log planning and codec decisions to stderr")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()

	if cfg.schemaFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: layoutc -schema <file.json> [-struct Name]")
		fmt.Fprintln(os.Stderr, "       layoutc -schema <file.json> -struct Name -encode <value.json> [-o msg.bin]")
		fmt.Fprintln(os.Stderr, "       layoutc -schema <file.json> -struct Name -decode <msg.bin> [-json]")
		fmt.Fprintln(os.Stderr, "       layoutc -schema <file.json> -i  (interactive mode)")
		os.Exit(1)
	}

	logger := zap.NewNop()
	if cfg.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()
	layout.SetLogger(logger)
	codec.SetLogger(logger)

	if *interactive {
		if err := runInteractive(cfg.schemaFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadSchema(path string) (*schema.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "open schema "+path)
	}
	defer f.Close()
	return schema.LoadJSON(f)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func run(cfg config, stdin io.Reader, stdout io.Writer) error {
	file, err := loadSchema(cfg.schemaFile)
	if err != nil {
		return err
	}
	planner := codec.NewPlanner(file, layout.Options{})

	if cfg.structName == "" {
		structs, err := planner.PlanAll()
		for _, st := range structs {
			fmt.Fprintln(stdout, layout.Summary(st))
		}
		return err
	}

	st, err := planner.PlanName(cfg.structName)
	if err != nil {
		return err
	}

	switch {
	case cfg.encodeFile != "":
		return encode(cfg, planner, st, stdin, stdout)
	case cfg.decodeFile != "":
		return decode(cfg, planner, st, stdin, stdout)
	case cfg.wit:
		info, err := witbridge.SizeOf(witbridge.NewProjector(planner), st)
		if err != nil {
			return fmt.Errorf("project: %w", err)
		}
		fmt.Fprintf(stdout, "%s: size %d, align %d\n", st.Name, info.Size, info.Align)
		return nil
	}
	return layout.Dump(stdout, st)
}

func encode(cfg config, src layout.StructSource, st *layout.Struct, stdin io.Reader, stdout io.Writer) error {
	raw, err := readInput(cfg.encodeFile, stdin)
	if err != nil {
		return fmt.Errorf("read value: %w", err)
	}
	v, err := schema.ParseValue(raw)
	if err != nil {
		return err
	}
	sv, ok := v.(schema.Struct)
	if !ok {
		return fmt.Errorf("value must be a struct literal, got %s", schema.Format(v))
	}
	msg, err := codec.NewEncoder(src, codec.Options{}).Encode(st, sv)
	if err != nil {
		return err
	}

	if cfg.outFile != "" {
		return os.WriteFile(cfg.outFile, msg, 0o644)
	}
	// raw bytes would garble a terminal
	if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, err = io.WriteString(stdout, hex.Dump(msg))
		return err
	}
	_, err = stdout.Write(msg)
	return err
}

func decode(cfg config, src layout.StructSource, st *layout.Struct, stdin io.Reader, stdout io.Writer) error {
	msg, err := readInput(cfg.decodeFile, stdin)
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	if looksLikeHexDump(msg) {
		msg = parseHexDump(msg)
	}
	v, err := codec.NewDecoder(src, codec.Options{}).Decode(st, msg)
	if err != nil {
		return err
	}
	if !cfg.asJSON {
		_, err = fmt.Fprintln(stdout, schema.Format(v))
		return err
	}
	out, err := schema.MarshalValue(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s\n", out)
	return err
}

// looksLikeHexDump reports whether msg is the output of hex.Dump, which
// encode prints when stdout is a terminal.
func looksLikeHexDump(msg []byte) bool {
	return bytes.HasPrefix(msg, []byte("00000000  "))
}

func parseHexDump(msg []byte) []byte {
	var out []byte
	for _, line := range strings.Split(string(msg), "\n") {
		if len(line) < 10 {
			continue
		}
		body := line[10:]
		if i := strings.Index(body, "|"); i >= 0 {
			body = body[:i]
		}
		for _, field := range strings.Fields(body) {
			b, err := hex.DecodeString(field)
			if err != nil {
				break
			}
			out = append(out, b...)
		}
	}
	return out
}
