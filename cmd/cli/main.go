// Command fpctl is a CLI client for the Footprint API and its local price tables.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "footprint")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "footprint")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

// loadToken returns the stored token, or "" when there is none. An expired
// token is an error so that callers do not silently fall back to anonymous.
func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" {
		return "", nil
	}
	if !tf.ExpiresAt.IsZero() && time.Now().After(tf.ExpiresAt) {
		return "", errors.New("stored token expired (fpctl token save)")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server is the one that verifies.
func tokenExpiry(tok string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// ---- HTTP client ----

// apiError is a non-2xx answer of the API.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
}

type client struct {
	base  string
	token string
	hc    *http.Client
}

func newClient(base, token string) *client {
	return &client{base: strings.TrimRight(base, "/"), token: token, hc: &http.Client{Timeout: 2 * time.Minute}}
}

// do sends in as JSON (when non-nil) and decodes the answer into out (when non-nil).
func (c *client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var eb struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return &apiError{Status: resp.StatusCode, Code: eb.Code, Message: eb.Error}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `fpctl CLI
Usage:
  fpctl [-addr URL] <cmd> [args]

Local commands:
  version
  price      -size A4 -paper matte -frame none [-shipping n] [-discount n]
  quote      -size A4 -paper matte -frame none [-region israel] [-method standard] [-code CODE]
  discount   -code CODE -subtotal n
  shipping   [-region israel] [-method standard]
  styles     [-file styles.yaml]
  token save -token JWT | -file path|-                (stores the token)
  token mint -secret S -user ID [-role admin] [-ttl 1h] (signs and stores a token)

API commands:
  transform  -url IMAGE_URL -style ID [-provider nano-banana|replicate]
  get        -id UUID
  list       [-limit n]
  stats      [-from DATE] [-to DATE]                 (admin)
  cost       -user ID [-from DATE] [-to DATE]        (admin)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands; API commands send the stored bearer token.
func main() {
	addr := flag.String("addr", envOr("FOOTPRINT_API", "http://localhost:8080"), "API base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "version":
		fmt.Printf("fpctl %s (%s)\n", version, buildDate)

	case "price":
		out, err := cmdPrice(args)
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "quote":
		out, err := cmdQuote(args)
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "discount":
		out, err := cmdDiscount(args)
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "shipping":
		out, err := cmdShipping(args)
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "styles":
		out, err := cmdStyles(args)
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "token":
		if len(args) < 1 {
			usage()
		}
		exp, err := cmdToken(args[0], args[1:])
		if err != nil {
			fail(err)
		}
		if exp.IsZero() {
			fmt.Println("token saved (no expiry)")
		} else {
			fmt.Printf("token saved, expires %s\n", exp.UTC().Format(time.RFC3339))
		}

	default:
		token, err := loadToken()
		if err != nil {
			fail(err)
		}
		ctx, cancel := withTimeout()
		defer cancel()
		out, err := runAPI(ctx, newClient(*addr, token), cmd, args)
		if errors.Is(err, errUnknownCommand) {
			usage()
		}
		if err != nil {
			fail(err)
		}
		printJSON(out)
	}
}

var errUnknownCommand = errors.New("unknown command")

// runAPI executes one of the commands that talk to the server.
func runAPI(ctx context.Context, c *client, cmd string, args []string) (json.RawMessage, error) {
	var out json.RawMessage
	switch cmd {
	case "transform":
		fs := newFlagSet("transform")
		src := fs.String("url", "", "source image URL")
		style := fs.String("style", "", "style id")
		prov := fs.String("provider", "", "AI provider")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *src == "" || *style == "" {
			return nil, errors.New("need -url and -style")
		}
		body := map[string]string{"imageUrl": *src, "style": *style}
		if *prov != "" {
			body["provider"] = *prov
		}
		if err := c.do(ctx, http.MethodPost, "/api/transform", nil, body, &out); err != nil {
			return nil, err
		}
		return out, nil

	case "get":
		fs := newFlagSet("get")
		id := fs.String("id", "", "transformation id (uuid)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *id == "" {
			return nil, errors.New("need -id")
		}
		if err := c.do(ctx, http.MethodGet, "/api/transform/"+url.PathEscape(*id), nil, nil, &out); err != nil {
			return nil, err
		}
		return out, nil

	case "list":
		fs := newFlagSet("list")
		limit := fs.Int("limit", 0, "max rows (server default when 0)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		q := url.Values{}
		if *limit > 0 {
			q.Set("limit", fmt.Sprint(*limit))
		}
		if err := c.do(ctx, http.MethodGet, "/api/transform", q, nil, &out); err != nil {
			return nil, err
		}
		return out, nil

	case "stats":
		fs := newFlagSet("stats")
		from := fs.String("from", "", "window start (YYYY-MM-DD)")
		to := fs.String("to", "", "window end (YYYY-MM-DD)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if err := c.do(ctx, http.MethodGet, "/api/admin/transformations/stats", window(*from, *to), nil, &out); err != nil {
			return nil, err
		}
		return out, nil

	case "cost":
		fs := newFlagSet("cost")
		user := fs.String("user", "", "user id")
		from := fs.String("from", "", "window start (YYYY-MM-DD)")
		to := fs.String("to", "", "window end (YYYY-MM-DD)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *user == "" {
			return nil, errors.New("need -user")
		}
		if err := c.do(ctx, http.MethodGet, "/api/admin/users/"+url.PathEscape(*user)+"/cost", window(*from, *to), nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

func window(from, to string) url.Values {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	return q
}

// ---- helpers ----

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d code=%s msg=%s\n", ae.Status, ae.Code, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
