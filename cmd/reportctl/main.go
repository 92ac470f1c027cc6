package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/alanta/DevOpsReleaseReport/pkg/api/client"
	"github.com/alanta/DevOpsReleaseReport/pkg/config"
	"github.com/alanta/DevOpsReleaseReport/pkg/crypto"
	jwtpkg "github.com/alanta/DevOpsReleaseReport/pkg/jwt"
)

const defaultAPIBaseURL = "http://localhost:7071"

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token,omitempty"`
	FunctionKey string `json:"function_key,omitempty"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = commandLogin(args)
	case "releases":
		err = commandReleases(args)
	case "refresh":
		err = commandRefresh(args)
	case "health":
		err = commandHealth(args)
	case "token":
		err = commandToken(args)
	case "hash-key":
		err = commandHashKey(args)
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

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	token := fs.String("token", "", "Bearer token (supply to avoid prompt)")
	useKey := fs.Bool("function-key", false, "Store a function key instead of a bearer token")
	fs.Parse(args)

	secret := strings.TrimSpace(*token)
	if secret == "" {
		prompt := "Token: "
		if *useKey {
			prompt = "Function key: "
		}
		var err error
		secret, err = readSecret(prompt)
		if err != nil {
			return err
		}
	}
	if secret == "" {
		return errors.New("a token or function key is required")
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = strings.TrimSpace(*apiBase)
	}
	if *useKey {
		cfg.FunctionKey = secret
		cfg.AccessToken = ""
	} else {
		cfg.AccessToken = secret
		cfg.FunctionKey = ""
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := client.Refresh(ctx, cfg.AccessToken, 0); err != nil {
		var apiErr apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 401 {
			return errors.New("credentials rejected by the report API")
		}
		if !errors.As(err, &apiErr) {
			return err
		}
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandReleases(args []string) error {
	fs := flag.NewFlagSet("releases", flag.ExitOnError)
	env := fs.String("env", "", "Environment filter (classic release pipelines)")
	asJSON := fs.Bool("json", false, "Print JSON even on a terminal")
	timeout := fs.Duration("timeout", 2*time.Minute, "Request timeout")
	fs.Parse(args)

	cfg, client, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	releases, err := client.ListPendingReleases(ctx, cfg.AccessToken, *env)
	if err != nil {
		return err
	}
	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		return printJSON(os.Stdout, releases)
	}
	if len(releases) == 0 {
		fmt.Println("no releases pending approval")
		return nil
	}
	for _, release := range releases {
		printRelease(os.Stdout, release)
	}
	return nil
}

func commandRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	id := fs.Int("id", 0, "Pipeline definition id")
	asJSON := fs.Bool("json", false, "Print JSON even on a terminal")
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("--id is required")
	}
	cfg, client, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	release, err := client.Refresh(ctx, cfg.AccessToken, *id)
	if err != nil {
		return err
	}
	if release == nil {
		return fmt.Errorf("definition %d not found", *id)
	}
	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		return printJSON(os.Stdout, release)
	}
	printRelease(os.Stdout, *release)
	return nil
}

func commandHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	fs.Parse(args)

	cfg, _ := loadConfig()
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Println(health.Status)
	for name, component := range health.Components {
		fmt.Printf("%s\t%v\n", name, component["status"])
	}
	return nil
}

func commandToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "", "Token subject")
	name := fs.String("name", "", "Display name")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	fs.Parse(args)

	if strings.TrimSpace(*subject) == "" {
		return errors.New("--subject is required")
	}
	secret := config.GetString("JWT_SECRET", "")
	if secret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	token, err := jwtpkg.GenerateToken(strings.TrimSpace(*subject), *name, secret, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func commandHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ExitOnError)
	fs.Parse(args)

	key, err := readSecret("Function key: ")
	if err != nil {
		return err
	}
	if key == "" {
		return errors.New("function key must not be empty")
	}
	hash, err := crypto.HashKey(key)
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
}

func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, 4096))
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	fmt.Print(prompt)
	bytes, err := term.ReadPassword(fd)
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(bytes)), nil
}

func authenticatedClient() (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(cfg.AccessToken) == "" && strings.TrimSpace(cfg.FunctionKey) == "" {
		return cliConfig{}, nil, errors.New("please login first using 'reportctl login'")
	}
	client, err := newClient(cfg)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func newClient(cfg cliConfig) (*apiclient.Client, error) {
	return apiclient.New(cfg.APIBaseURL, apiclient.WithFunctionKey(cfg.FunctionKey))
}

func printRelease(w io.Writer, release apiclient.Release) {
	fmt.Fprintf(w, "%s\t%s\t%s\n", release.Name, release.Version, release.URL)
	if len(release.WorkItems) == 0 {
		fmt.Fprintln(w, "  (no work items)")
	}
	for _, item := range release.WorkItems {
		printWorkItem(w, item, 1)
	}
}

func printWorkItem(w io.Writer, item apiclient.WorkItem, depth int) {
	fmt.Fprintf(w, "%s%-5s %d\t%s\t%s\n", strings.Repeat("  ", depth), item.Type, item.ID, item.Status, item.Description)
	for _, task := range item.Tasks {
		printWorkItem(w, task, depth+1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
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
	return filepath.Join(base, "releasereport", "config.json"), nil
}

func printUsage() {
	fmt.Printf("reportctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	reportctl login [--api ` + defaultAPIBaseURL + `] [--token T] [--function-key]
	reportctl releases [--env Production] [--json]
	reportctl refresh --id <definition-id> [--json]
	reportctl health
	reportctl token --subject <name> [--name "Display Name"] [--ttl 24h]   (reads JWT_SECRET)
	reportctl hash-key                                                       (prints a FUNCTION_KEY_HASHES entry)
	reportctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
