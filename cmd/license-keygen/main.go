// license-keygen issues machine-bound activation keys.
//
// Support staff run it with the customer's machine signature (shown in
// the POS client's license screen):
//
//	license-keygen -signature "base64signature" -count 3
//
// Run with -local to issue keys for the machine the tool runs on, useful
// for internal installs and testing.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"poscli/internal/license"
	"poscli/internal/security"
)

func main() {
	signature := flag.String("signature", "", "target machine signature (base64)")
	local := flag.Bool("local", false, "issue keys for this machine")
	count := flag.Int("count", 1, "number of keys to issue")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	target := *signature
	if *local {
		fp := security.NewFingerprintService(logger)
		sig, err := fp.GetMachineSignature()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read local machine signature: %v\n", err)
			os.Exit(1)
		}
		target = sig
		fmt.Fprintf(os.Stderr, "local machine signature: %s\n", target)
	}

	if target == "" {
		fmt.Fprintln(os.Stderr, "either -signature or -local is required")
		flag.Usage()
		os.Exit(2)
	}

	if *count < 1 {
		fmt.Fprintln(os.Stderr, "-count must be at least 1")
		os.Exit(2)
	}

	for i := 0; i < *count; i++ {
		key, err := license.GenerateKey(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "key generation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
	}
}
