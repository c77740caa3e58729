// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - config show, path and set.
//
// These commands work on the file alone so a broken config can be repaired.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/mindstack-tui/internal/config"
)

// HandleConfig shows or changes the configuration.
//
//	mindstack config [show]
//	mindstack config path
//	mindstack config set KEY VALUE
//	mindstack config keys
func HandleConfig(w io.Writer, args Args) error {
	switch args.Subcommand {
	case "show":
		return handleConfigShow(w)
	case "path":
		return handleConfigPath(w)
	case "set":
		return handleConfigSet(w, args.ConfigKey, args.ConfigVal)
	case "keys":
		for _, k := range config.AllKeys() {
			fmt.Fprintln(w, k)
		}
		return nil
	}
	return NewUsageError("unknown config command "+args.Subcommand, "mindstack config [show|path|set KEY VALUE|keys]")
}

// handleConfigShow prints the effective configuration, env overrides
// included, with secrets masked.
func handleConfigShow(w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path, _ := config.ConfigPath()
	fmt.Fprintln(w, RenderConditional(DimStyle, "# "+path))
	fmt.Fprint(w, cfg.String())
	return nil
}

func handleConfigPath(w io.Writer) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, path)
	return nil
}

// handleConfigSet changes one key in the config file. Environment
// overrides are not applied, so they never get written back.
func handleConfigSet(w io.Writer, key, value string) error {
	if key == "" || value == "" {
		return NewUsageError("a key and a value are required", "mindstack config set KEY VALUE")
	}
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return statErr
	}

	key = strings.ToLower(strings.TrimSpace(key))
	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error()+"; see `mindstack config keys`")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s = %s\n", RenderConditional(SuccessStyle, "[OK]"), key, maskIfSecret(key, value))
	return nil
}

func maskIfSecret(key, value string) string {
	if !strings.Contains(key, "key") && !strings.Contains(key, "token") {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
