// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package main implements a line-based scanner for session secret hygiene.
//
// It reports three kinds of issues:
//   - math/rand imported where keys, randomness or OAuth state are drawn
//   - functions that restore or generate an ephemeral key without zeroing it
//   - log or print statements that mention tokens, keys or passphrases
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Directories where randomness must come from crypto/rand
var randDirs = []string{
	"internal/ephemeral",
	"internal/oauth",
	"internal/crypto",
	"internal/session",
	"internal/engine",
}

// Directories scanned for zeroing and log leakage
var scanDirs = []string{
	"internal",
	"cmd",
}

var skipPatterns = []string{
	"_test.go",
	"testdata",
	"internal/testutil",
}

var mathRandImport = regexp.MustCompile(`"math/rand(/v2)?"`)

// Calls that hand back live ephemeral key material
var keySources = []*regexp.Regexp{
	regexp.MustCompile(`\.Material\(\)`),
	regexp.MustCompile(`\.BeginSession\(\)`),
	regexp.MustCompile(`ephemeral\.Restore\(`),
}

var zeroCall = regexp.MustCompile(`\.Zero\(\)|ZeroBytes\(`)

// Functions that pass key ownership to their caller.
var exemptFunctions = map[string]string{
	"BeginSession": "returns material to caller",
	"Material":     "returns material to caller",
	"Restore":      "returns key to caller",
}

var logCall = regexp.MustCompile(`\b(logger|Logger|slog|util|log)\.(Debug|Info|Warn|Error|Print|Printf|Println)\(|fmt\.(Print|Printf|Println|Fprintf|Fprintln)\(`)

// Secret-bearing identifiers that must never reach a log line
var secretRefs = regexp.MustCompile(`\b(s|sess|session)\.(IDToken|PrivateKey|Randomness)\b|\bKey\.Encode\(\)|\bpassphrase\b|\bpass\b|\bpriv\b|\bseed\b`)

// A quoted mention ("passphrase: ") is prose, not a value.
var quoted = regexp.MustCompile(`"[^"]*"`)

var funcPattern = regexp.MustCompile(`^func\s+(\([^)]+\)\s+)?(\w+)`)

type finding struct {
	file    string
	line    int
	content string
	reason  string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: keyhygiene <repo-root>")
		os.Exit(1)
	}

	root := os.Args[1]
	var findings []finding
	filesChecked := 0

	seen := make(map[string]bool)
	for _, dir := range append(append([]string{}, randDirs...), scanDirs...) {
		dirPath := filepath.Join(root, dir)
		if _, err := os.Stat(dirPath); os.IsNotExist(err) {
			continue
		}
		err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(path, ".go") || seen[path] {
				return nil
			}
			for _, skip := range skipPatterns {
				if strings.Contains(filepath.ToSlash(path), skip) {
					return nil
				}
			}
			seen[path] = true

			lines, err := readLines(path)
			if err != nil {
				return nil
			}
			filesChecked++
			rel, _ := filepath.Rel(root, path)
			findings = append(findings, checkLines(filepath.ToSlash(rel), lines)...)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error walking %s: %v\n", dir, err)
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].file != findings[j].file {
			return findings[i].file < findings[j].file
		}
		return findings[i].line < findings[j].line
	})

	fmt.Printf("Session Secret Hygiene\n")
	fmt.Printf("======================\n")
	fmt.Printf("Files checked: %d\n\n", filesChecked)

	if len(findings) == 0 {
		fmt.Println("No issues found.")
		os.Exit(0)
	}

	fmt.Printf("Potential issues: %d\n\n", len(findings))
	for _, f := range findings {
		fmt.Printf("%s:%d\n", f.file, f.line)
		fmt.Printf("  Line: %s\n", strings.TrimSpace(f.content))
		fmt.Printf("  Issue: %s\n\n", f.reason)
	}
	os.Exit(1)
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func inRandDir(rel string) bool {
	for _, d := range randDirs {
		if strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}

// checkLines runs every check over one file. rel is slash-separated and
// relative to the repo root.
func checkLines(rel string, lines []string) []finding {
	var findings []finding

	if inRandDir(rel) {
		for i, line := range lines {
			if mathRandImport.MatchString(line) {
				findings = append(findings, finding{rel, i + 1, line, "math/rand imported where secrets are drawn; use crypto/rand"})
			}
		}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || !logCall.MatchString(line) {
			continue
		}
		if secretRefs.MatchString(quoted.ReplaceAllString(line, `""`)) {
			findings = append(findings, finding{rel, i + 1, line, "secret value passed to a log or print call"})
		}
	}

	return append(findings, checkZeroing(rel, lines)...)
}

// checkZeroing reports functions that obtain key material and never zero it.
func checkZeroing(rel string, lines []string) []finding {
	var findings []finding

	inFunc := false
	funcName := ""
	braces := 0
	srcLine := 0
	srcContent := ""
	hasZero := false

	flush := func() {
		if inFunc && srcLine != 0 && !hasZero {
			if _, exempt := exemptFunctions[funcName]; !exempt {
				findings = append(findings, finding{rel, srcLine, srcContent,
					fmt.Sprintf("%s obtains ephemeral key material but never zeroes it", funcName)})
			}
		}
	}

	for i, line := range lines {
		if m := funcPattern.FindStringSubmatch(line); m != nil {
			flush()
			inFunc = true
			funcName = m[2]
			braces = 0
			srcLine = 0
			hasZero = false
		}
		if !inFunc {
			continue
		}

		braces += strings.Count(line, "{") - strings.Count(line, "}")
		if srcLine == 0 {
			for _, p := range keySources {
				if p.MatchString(line) {
					srcLine = i + 1
					srcContent = line
					break
				}
			}
		}
		if zeroCall.MatchString(line) {
			hasZero = true
		}
		if braces == 0 && strings.Contains(line, "}") {
			flush()
			inFunc = false
		}
	}
	flush()
	return findings
}
