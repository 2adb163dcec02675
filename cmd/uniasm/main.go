// uniasm - cross-architecture instruction encoder
// Reads a JSON program description and emits machine code for any of the
// supported targets. Output can be raw bytes, hex, or a disassembly listing
// for the targets golang.org/x/arch can decode.
package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/codegenlab/uniasm/asm"
	"github.com/codegenlab/uniasm/asm/program"
	log "github.com/codegenlab/uniasm/log"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "uniasm",
		Short: "Cross-architecture instruction encoder",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var (
		target    string
		output    string
		format    string
		logLevel  string
		debug     string
		release6  bool
		avxLevel  int
		pair256   bool
		fastFCTRL bool
	)

	var encodeCmd = &cobra.Command{
		Use:   "encode <program.json>",
		Short: "Encode a JSON program into machine code",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			for _, m := range strings.Split(debug, ",") {
				if m != "" {
					log.EnableModule(strings.TrimSpace(m))
				}
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Printf("Failed to read program: %v\n", err)
				os.Exit(1)
			}
			p, err := program.Parse(data)
			if err != nil {
				fmt.Printf("Failed to parse program: %v\n", err)
				os.Exit(1)
			}

			feat := asm.Features{
				Release6:  release6,
				AVXLevel:  avxLevel,
				Pair256:   pair256,
				FastFCTRL: fastFCTRL,
			}
			enc, err := program.NewEncoder(target, feat)
			if err != nil {
				fmt.Printf("Unknown target %q (see 'uniasm targets'): %v\n", target, err)
				os.Exit(1)
			}
			if err := program.Assemble(enc, p); err != nil {
				fmt.Printf("Failed to assemble %s for %s: %v\n", p.Name, target, err)
				os.Exit(1)
			}
			code := enc.Buffer().Code()

			rendered, err := render(code, enc.Target(), format)
			if err != nil {
				fmt.Printf("Failed to render output: %v\n", err)
				os.Exit(1)
			}
			if output == "" || output == "-" {
				os.Stdout.Write(rendered)
				return
			}
			if err := os.WriteFile(output, rendered, 0o644); err != nil {
				fmt.Printf("Failed to write %s: %v\n", output, err)
				os.Exit(1)
			}
			log.Info(log.CLIMonitoring, "wrote machine code", "file", output, "target", target, "bytes", len(code))
		},
	}
	encodeCmd.Flags().StringVarP(&target, "target", "t", env.Str("UNIASM_TARGET", "amd64"), "Target architecture")
	encodeCmd.Flags().StringVarP(&output, "out", "o", "-", "Output file (- for stdout)")
	encodeCmd.Flags().StringVarP(&format, "format", "f", env.Str("UNIASM_FORMAT", "hex"), "Output format (hex, bin, words, disasm)")
	encodeCmd.Flags().StringVar(&logLevel, "log-level", env.Str("UNIASM_LOG", "info"), "Log level (trace, debug, info, warn, error)")
	encodeCmd.Flags().StringVar(&debug, "debug", "", "Debug modules to enable (comma separated)")
	encodeCmd.Flags().BoolVar(&release6, "r6", env.Bool("UNIASM_R6"), "Use MIPS release 6 encodings")
	encodeCmd.Flags().IntVar(&avxLevel, "avx", 0, "x86 AVX level (0 for SSE2)")
	encodeCmd.Flags().BoolVar(&pair256, "pair256", false, "Pair 128-bit vector ops into 256-bit lanes")
	encodeCmd.Flags().BoolVar(&fastFCTRL, "fast-fctrl", false, "Assume cheap FP control register writes")
	rootCmd.AddCommand(encodeCmd)

	var targetsCmd = &cobra.Command{
		Use:   "targets",
		Short: "List supported target architectures",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range program.Targets() {
				fmt.Println(name)
			}
		},
	}
	rootCmd.AddCommand(targetsCmd)

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("uniasm %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func render(code []byte, t asm.Target, format string) ([]byte, error) {
	switch format {
	case "bin":
		return code, nil
	case "hex":
		return []byte(hex.EncodeToString(code) + "\n"), nil
	case "words":
		if len(code)%4 != 0 {
			return nil, fmt.Errorf("code length %d is not word aligned", len(code))
		}
		var sb strings.Builder
		for off := 0; off < len(code); off += 4 {
			var w uint32
			if t.Order == binary.BigEndian {
				w = binary.BigEndian.Uint32(code[off:])
			} else {
				w = binary.LittleEndian.Uint32(code[off:])
			}
			fmt.Fprintf(&sb, "%08x\n", w)
		}
		return []byte(sb.String()), nil
	case "disasm":
		return disasm(code, t)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// disasm renders a listing for the targets x/arch can decode. The fixed-width
// targets share x/arch/arm64's decoder only for arm64; MIPS and POWER fall
// back to the words format.
func disasm(code []byte, t asm.Target) ([]byte, error) {
	var sb strings.Builder
	switch t.Arch {
	case asm.AMD64:
		pc := 0
		for len(code) > 0 {
			inst, err := x86asm.Decode(code, 64)
			if err != nil {
				return nil, fmt.Errorf("decode at %#x: %w", pc, err)
			}
			fmt.Fprintf(&sb, "%6x: %-24s %s\n", pc,
				hex.EncodeToString(code[:inst.Len]), x86asm.GNUSyntax(inst, uint64(pc), nil))
			code = code[inst.Len:]
			pc += inst.Len
		}
	case asm.ARM64:
		for off := 0; off+4 <= len(code); off += 4 {
			inst, err := arm64asm.Decode(code[off : off+4])
			if err != nil {
				return nil, fmt.Errorf("decode at %#x: %w", off, err)
			}
			fmt.Fprintf(&sb, "%6x: %08x  %s\n", off,
				binary.LittleEndian.Uint32(code[off:]), arm64asm.GNUSyntax(inst))
		}
	default:
		return render(code, t, "words")
	}
	return []byte(sb.String()), nil
}
