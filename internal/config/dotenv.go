package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Secret keys resolved through GetConfigValue.
const (
	KeyOpenAIAPIKey    = "ASSESSREC_OPENAI_API_KEY"
	KeyGeminiAPIKey    = "ASSESSREC_GEMINI_API_KEY"
	KeyAWSAccessKeyID  = "AWS_ACCESS_KEY_ID"
	KeyAWSSecretKey    = "AWS_SECRET_ACCESS_KEY"
	KeyAWSSessionToken = "AWS_SESSION_TOKEN"
)

// DotEnvPath returns the absolute path to the secrets file (~/.assessrec/.env).
func DotEnvPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".env"), nil
}

// LoadDotEnv reads ~/.assessrec/.env and returns key/value pairs. A missing
// file yields an empty map. Syntax follows godotenv: comments, quoting and
// an optional "export" prefix are accepted.
func LoadDotEnv() (map[string]string, error) {
	p, err := DotEnvPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot open dotenv file %s: %w", p, err)
	}

	out, err := godotenv.Read(p)
	if err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return out, nil
}

// GetConfigValue returns the effective value for key, using process environment variables
// first and falling back to ~/.assessrec/.env.
func GetConfigValue(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	dotenv, err := LoadDotEnv()
	if err != nil {
		return "", err
	}
	return dotenv[key], nil
}

// EnsureDotEnvTemplate creates ~/.assessrec/.env if it does not already exist.
//
// The template lists the secret keys with empty values so users can fill in
// the ones for the remote embedders or S3 artifacts they use.
func EnsureDotEnvTemplate() error {
	p, err := DotEnvPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(p), err)
	}
	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot stat dotenv file %s: %w", p, err)
	}

	body := "" +
		"# Remote embedding providers\n" +
		KeyOpenAIAPIKey + "=\n" +
		KeyGeminiAPIKey + "=\n" +
		"# S3 artifact storage\n" +
		KeyAWSAccessKeyID + "=\n" +
		KeyAWSSecretKey + "=\n"

	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		return fmt.Errorf("cannot write dotenv template %s: %w", p, err)
	}
	return nil
}
