package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/Starbugstone/chat/pkg/api/client"
	"github.com/Starbugstone/chat/pkg/config"
)

const requestTimeout = 15 * time.Second

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token,omitempty"`
}

var buildVersion = "dev"

func main() {
	config.LoadDotEnv()
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "verify":
		err = commandVerify(args)
	case "me":
		err = commandMe(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	dob := fs.String("dob", "", "Date of birth (YYYY-MM-DD)")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	if strings.TrimSpace(*dob) == "" {
		return errors.New("--dob is required")
	}

	secret := *password
	if secret == "" {
		var err error
		if secret, err = promptPassword(); err != nil {
			return err
		}
	}

	client, cfg, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := client.Register(ctx, apiclient.RegisterInput{
		Email:       *email,
		Password:    secret,
		DateOfBirth: *dob,
	})
	if err != nil {
		return describe(err)
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}

	fmt.Println(resp.Message)
	fmt.Printf("Account ID: %s\n", resp.User.ID)
	fmt.Printf("Verification expires: %s\n", resp.VerificationExpiresAt.Local().Format(time.RFC1123))
	if resp.VerificationToken != "" {
		fmt.Printf("Verification token: %s\n", resp.VerificationToken)
	}
	return nil
}

func commandVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	token := fs.String("token", "", "Verification token from the email link")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*token) == "" {
		return errors.New("--token is required")
	}
	client, _, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := client.VerifyEmail(ctx, strings.TrimSpace(*token))
	if err != nil {
		return describe(err)
	}
	fmt.Println(resp.Message)
	fmt.Printf("%s verified: %t\n", resp.User.Email, resp.User.IsEmailVerified)
	return nil
}

func commandMe(args []string) error {
	fs := flag.NewFlagSet("me", flag.ExitOnError)
	token := fs.String("token", "", "Bearer token (defaults to ACCOUNTS_TOKEN or the saved token)")
	apiBase := fs.String("api", "", "API base URL")
	save := fs.Bool("save", false, "Remember the supplied token")
	fs.Parse(args)

	client, cfg, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	bearer := strings.TrimSpace(*token)
	if bearer == "" {
		bearer = strings.TrimSpace(config.GetString("ACCOUNTS_TOKEN", cfg.AccessToken))
	}
	if bearer == "" {
		return errors.New("no bearer token: pass --token or set ACCOUNTS_TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	user, err := client.Me(ctx, bearer)
	if err != nil {
		return describe(err)
	}
	if *save {
		cfg.AccessToken = bearer
		if err := saveConfig(cfg); err != nil {
			return err
		}
	}
	out, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newClient(apiBase string) (*apiclient.Client, cliConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cliConfig{}, err
	}
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = strings.TrimSpace(apiBase)
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, cliConfig{}, err
	}
	return client, cfg, nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

// describe flattens API validation details into the error message.
func describe(err error) error {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Details) == 0 {
		return err
	}
	parts := make([]string, 0, len(apiErr.Details))
	for field, msgs := range apiErr.Details {
		parts = append(parts, field+": "+strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w [%s]", err, strings.Join(parts, ", "))
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: config.GetString("ACCOUNTS_API", "http://localhost:4000")}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = config.GetString("ACCOUNTS_API", "http://localhost:4000")
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "accounts", "config.json"), nil
}

func printUsage() {
	fmt.Printf("accounts CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	accounts register --email user@example.com --dob 2000-01-31 [--password secret] [--api http://localhost:4000]
	accounts verify --token <verification-token>
	accounts me [--token <jwt>] [--save]
	accounts version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
