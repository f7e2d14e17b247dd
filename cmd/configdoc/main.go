// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// configdoc generates markdown documentation from Go struct tags.
// Usage: go run ./cmd/configdoc > doc/CONFIG_REFERENCE.md
package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/aplane-algo/zklogin/internal/util"
)

// EnvVar represents an environment variable configuration
type EnvVar struct {
	Name        string
	Description string
	UsedBy      string
}

// envDescriptions documents the variables LoadConfig maps onto config fields.
var envDescriptions = map[string]string{
	"ZKLOGIN_CLIENT_ID":       "Overrides `oauth.client_id`",
	"ZKLOGIN_REDIRECT_URI":    "Overrides `oauth.redirect_uri`",
	"ZKLOGIN_SALT_URL":        "Overrides `salt.url`",
	"ZKLOGIN_PROVER_URL":      "Overrides `prover.url`",
	"ZKLOGIN_SPONSOR_URL":     "Overrides `sponsor.url`",
	"ZKLOGIN_SPONSOR_ADDRESS": "Overrides `sponsor.address`",
	"ZKLOGIN_RPC_URL":         "Overrides `rpc_url`",
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--help" {
		fmt.Println("Usage: go run ./cmd/configdoc > doc/CONFIG_REFERENCE.md")
		fmt.Println()
		fmt.Println("Generates markdown documentation from Go struct tags.")
		return
	}
	fmt.Print(render())
}

func render() string {
	var b strings.Builder

	b.WriteString("# Configuration Reference\n\n")
	b.WriteString("Auto-generated from Go struct tags. Do not edit manually.\n\n")
	b.WriteString("---\n\n")

	b.WriteString("## zklogin / zkproxyd Configuration\n\n")
	b.WriteString("File: `config.yaml` in the data directory (`-d`, `ZKLOGIN_DATA`, or `~/.zklogin`)\n\n")
	b.WriteString("| Field | Type | Default | Description |\n")
	b.WriteString("|-------|------|---------|-------------|\n")
	writeStructTable(&b, reflect.TypeOf(util.Config{}), "")
	b.WriteString("\n")

	b.WriteString("## Environment Variables\n\n")
	writeEnvVars(&b)
	return b.String()
}

func writeStructTable(b *strings.Builder, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag := field.Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		fieldName := strings.Split(tag, ",")[0]
		if prefix != "" {
			fieldName = prefix + "." + fieldName
		}

		desc := field.Tag.Get("description")

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			if desc == "" {
				desc = "(nested config block)"
			}
			fmt.Fprintf(b, "| `%s` | object | (none) | %s |\n", fieldName, desc)
			writeStructTable(b, ft, fieldName)
			continue
		}

		if desc == "" {
			desc = "(no description)"
		}
		def := field.Tag.Get("default")
		switch def {
		case "":
			def = "(none)"
		case `""`:
			def = "(empty string)"
		}

		fmt.Fprintf(b, "| `%s` | %s | `%s` | %s |\n", fieldName, formatType(field.Type), def, desc)
	}
}

func formatType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "uint"
	case reflect.Bool:
		return "bool"
	case reflect.Slice:
		return "[]" + formatType(t.Elem())
	case reflect.Ptr:
		return "*" + formatType(t.Elem())
	default:
		return t.String()
	}
}

func writeEnvVars(b *strings.Builder) {
	envVars := []EnvVar{
		{"ZKLOGIN_DATA", "Data directory (config, session, audit log)", "zklogin, zkproxyd"},
		{"ZKLOGIN_DEBUG", "Set to any value to enable debug logging", "zklogin, zkproxyd"},
		{"NO_COLOR", "Disable colored output", "zklogin"},
	}
	for _, name := range util.EnvOverrideNames() {
		envVars = append(envVars, EnvVar{name, envDescriptions[name], "zklogin, zkproxyd"})
	}

	b.WriteString("| Variable | Description | Used By |\n")
	b.WriteString("|----------|-------------|---------|\n")
	for _, env := range envVars {
		desc := env.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(b, "| `%s` | %s | %s |\n", env.Name, desc, env.UsedBy)
	}

	b.WriteString("\n### Data Directory Configuration\n\n")
	b.WriteString("Resolution order:\n")
	b.WriteString("1. `-d <path>` flag\n")
	b.WriteString("2. `ZKLOGIN_DATA` environment variable\n")
	b.WriteString("3. `~/.zklogin`\n")
	b.WriteString("\n### Salt Policy\n\n")
	b.WriteString("`salt.policy` decides what happens when the salt service cannot be reached.\n")
	b.WriteString("`remote_with_fallback` derives a salt from the token locally, which yields a\n")
	b.WriteString("different address than the service would. `remote_only` fails instead.\n")
	b.WriteString("`local_only` never contacts the service.\n")
}
