package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"arkenstone/crypto"
	"arkenstone/services/stakingd/middleware"
)

const (
	defaultEndpoint  = "http://127.0.0.1:8545"
	defaultSecretEnv = "STAKINGD_JWT_SECRET"
	defaultIssuer    = "arkenstone"
	defaultTokenTTL  = 15 * time.Minute
)

// Profile holds the CLI's connection settings.
type Profile struct {
	Endpoint  string `yaml:"endpoint"`
	Token     string `yaml:"token,omitempty"`
	Subject   string `yaml:"subject,omitempty"`
	SecretEnv string `yaml:"secret_env,omitempty"`
	Issuer    string `yaml:"issuer,omitempty"`
}

func defaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "arkn-profile.yaml"
	}
	return filepath.Join(home, ".arkn", "profile.yaml")
}

// loadProfile reads path. A missing file yields the defaults.
func loadProfile(path string) (Profile, error) {
	profile := Profile{}
	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return profile, fmt.Errorf("open profile: %w", err)
	default:
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&profile); err != nil {
			return Profile{}, fmt.Errorf("decode profile: %w", err)
		}
	}
	profile.normalize()
	return profile, nil
}

func saveProfile(path string, profile Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := yaml.Marshal(profile)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func (p *Profile) normalize() {
	p.Endpoint = strings.TrimSpace(p.Endpoint)
	if p.Endpoint == "" {
		p.Endpoint = defaultEndpoint
	}
	p.Token = strings.TrimSpace(p.Token)
	p.Subject = strings.TrimSpace(p.Subject)
	p.SecretEnv = strings.TrimSpace(p.SecretEnv)
	if p.SecretEnv == "" {
		p.SecretEnv = defaultSecretEnv
	}
	p.Issuer = strings.TrimSpace(p.Issuer)
	if p.Issuer == "" {
		p.Issuer = defaultIssuer
	}
}

// bearer returns the static token, or signs a short-lived one for Subject
// when the shared secret is available in the environment.
func (p Profile) bearer() (string, error) {
	if p.Token != "" {
		return p.Token, nil
	}
	if p.Subject == "" {
		return "", nil
	}
	subject, err := crypto.ParseAddress(p.Subject)
	if err != nil {
		return "", fmt.Errorf("profile subject: %w", err)
	}
	secret, err := readSecret(p.SecretEnv, os.Stderr)
	if err != nil {
		return "", err
	}
	return middleware.IssueToken(secret, p.Issuer, subject, defaultTokenTTL)
}
