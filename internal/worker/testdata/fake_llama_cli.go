// Command fake_llama_cli speaks enough of llama-cli's interactive protocol for
// the worker tests.
//
// Environment knobs:
//
//	FAKE_EXIT_EARLY=msg     print msg on stderr and exit 1 before ready
//	FAKE_NO_READY=1         never print a ready banner
//	FAKE_BANNER=text        print text instead of the default banner
//	FAKE_ECHO=1             echo each prompt on stdout first
//	FAKE_IGNORE_SIGINT=1    ignore SIGINT
//	FAKE_IGNORE_SIGTERM=1   ignore SIGTERM
//	FAKE_HANG_ON_EOF=1      keep running after stdin closes
//	FAKE_ARGS_FILE=path     write argv (one per line) to path
//
// Prompts: "crash" exits 2, "silent" prints nothing, "nosentinel" prints one
// line and no sentinel, "many" prints five lines. Anything else gets
// "echo: <prompt>" and "done 🙂" followed by the reverse prompt.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

func main() {
	args := os.Args[1:]
	if path := os.Getenv("FAKE_ARGS_FILE"); path != "" {
		_ = os.WriteFile(path, []byte(strings.Join(args, "\n")+"\n"), 0o644)
	}
	reverse := flagValue(args, "-r")

	if os.Getenv("FAKE_IGNORE_SIGINT") == "1" {
		signal.Ignore(os.Interrupt)
	}
	if os.Getenv("FAKE_IGNORE_SIGTERM") == "1" {
		signal.Ignore(syscall.SIGTERM)
	}

	fmt.Fprintln(os.Stderr, "llama_model_loader: loaded meta data with 24 key-value pairs")
	if msg := os.Getenv("FAKE_EXIT_EARLY"); msg != "" {
		fmt.Fprintln(os.Stderr, "llama_model_load: error loading model: "+msg)
		os.Exit(1)
	}
	fmt.Println("build: 0 (fake)")
	if os.Getenv("FAKE_NO_READY") != "1" {
		banner := os.Getenv("FAKE_BANNER")
		if banner == "" {
			banner = "== Running in interactive mode. =="
		}
		fmt.Fprintln(os.Stderr, banner)
	}

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		prompt := in.Text()
		if os.Getenv("FAKE_ECHO") == "1" {
			fmt.Println(prompt)
		}
		switch prompt {
		case "crash":
			fmt.Fprintln(os.Stderr, "GGML_ASSERT: fake crash")
			os.Exit(2)
		case "silent":
			continue
		case "nosentinel":
			fmt.Println("partial")
			continue
		case "many":
			for i := 1; i <= 5; i++ {
				fmt.Printf("line %d\n", i)
			}
		default:
			fmt.Fprintln(os.Stderr, "llama_perf_context_print: fake timings")
			fmt.Println("echo: " + prompt)
			fmt.Println("done 🙂")
		}
		fmt.Println(reverse)
	}
	if os.Getenv("FAKE_HANG_ON_EOF") == "1" {
		select {}
	}
}

func flagValue(args []string, name string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == name {
			return args[i+1]
		}
	}
	return ""
}
