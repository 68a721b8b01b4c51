// evo-asm assembles organism programs to raw 32-bit little-endian words
// and disassembles them back.
//
// Usage:
//
//	evo-asm [-o outdir] [-config evo.toml] [-disasm] prog.evo ...
//	evo-asm -d prog.bin ...
//
// Assembling writes prog.bin into outdir. -d prints the text form of
// binary programs, including mutated ones.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/psilLang/evo/pkg/asm"
	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/vm"
)

func main() {
	outDir := flag.String("o", ".", "output directory")
	configPath := flag.String("config", "", "TOML configuration file (register count and block bits)")
	disasm := flag.Bool("disasm", false, "print the assembled program")
	decode := flag.Bool("d", false, "disassemble binary programs instead")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: evo-asm [-o outdir] [-config file] [-disasm] <prog.evo>...")
		fmt.Fprintln(os.Stderr, "       evo-asm -d <prog.bin>...")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	tbl, err := vm.NewTable(cfg.Code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, path := range flag.Args() {
		if *decode {
			err = disassembleFile(tbl, path)
		} else {
			err = assembleFile(tbl, path, *outDir, *disasm)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error in %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func assembleFile(tbl *vm.Table, path, outDir string, show bool) error {
	code, err := asm.AssembleFile(tbl, path)
	if err != nil {
		return err
	}
	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if show {
		fmt.Printf("=== %s (%d instructions) ===\n", baseName, len(code))
		fmt.Print(asm.Format(tbl, code))
	}
	out := filepath.Join(outDir, baseName+".bin")
	if err := os.WriteFile(out, asm.MarshalBinary(code), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	fmt.Printf("%s: %d instructions -> %s\n", baseName, len(code), out)
	return nil
}

func disassembleFile(tbl *vm.Table, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	code, err := asm.UnmarshalBinary(data)
	if err != nil {
		return err
	}
	fmt.Print(asm.Format(tbl, code))
	return nil
}
