// Package config loads the JSON configuration files used by the training and
// normalisation tools. Every tunable is a pointer so a partial file keeps the
// built-in default for anything it omits; the Get* accessors resolve that
// fallback.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/trashdetect/perception/internal/perr"
)

// maxFileSize caps config files at 1MB.
const maxFileSize = 1 * 1024 * 1024

var validate = validator.New()

// readJSONFile decodes the JSON file at path into v after checking the
// extension and size.
func readJSONFile(path string, v any) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return perr.Configf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return perr.Configf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &perr.Error{Kind: perr.ErrConfig, Path: cleanPath, Msg: "failed to parse config JSON", Err: err}
	}
	return nil
}

// checkStruct runs the struct tags through the shared validator and reports
// failures as ErrConfig.
func checkStruct(what string, v any) error {
	if err := validate.Struct(v); err != nil {
		return &perr.Error{Kind: perr.ErrConfig, Msg: "invalid " + what, Err: err}
	}
	return nil
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }
