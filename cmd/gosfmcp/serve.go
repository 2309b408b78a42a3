package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	sfmcp "github.com/sfmcp/snowflake-mcp"
	"github.com/sfmcp/snowflake-mcp/internal/auth"
)

// connFlags names every connection flag and its environment variable
// fallback. A flag explicitly set on the command line wins over the
// environment, which wins over the config file's connection section.
var connFlags = []struct {
	flag string
	env  string
}{
	{"account", "SNOWFLAKE_ACCOUNT"},
	{"host", "SNOWFLAKE_HOST"},
	{"user", "SNOWFLAKE_USER"},
	{"password", "SNOWFLAKE_PASSWORD"},
	{"role", "SNOWFLAKE_ROLE"},
	{"warehouse", "SNOWFLAKE_WAREHOUSE"},
	{"database", "SNOWFLAKE_DATABASE"},
	{"schema", "SNOWFLAKE_SCHEMA"},
	{"passcode", "SNOWFLAKE_PASSCODE"},
	{"authenticator", "SNOWFLAKE_AUTHENTICATOR"},
	{"private-key-file", "SNOWFLAKE_PRIVATE_KEY_FILE"},
	{"connection-name", "SNOWFLAKE_CONNECTION_NAME"},
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().String("config", "", "Path to the service configuration file (default $SERVICE_CONFIG_FILE)")
	for _, f := range connFlags {
		cmd.Flags().String(f.flag, "", fmt.Sprintf("Snowflake %s (env %s)", strings.ReplaceAll(f.flag, "-", " "), f.env))
	}
	return cmd
}

func runServe(cmd *cobra.Command) error {
	ctx := context.Background()

	serverConfig, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogger(serverConfig.Logging)

	params := resolveConnectionParams(cmd, serverConfig.Connection)
	promptForPasswordIfNeeded(&params)

	// The driver's connections.toml loader selects its profile through this
	// variable; export the resolved name before anything connects.
	if params.ConnectionName != "" {
		os.Setenv("SNOWFLAKE_DEFAULT_CONNECTION_NAME", params.ConnectionName)
	}

	engine, err := sfmcp.New(ctx, params, serverConfig.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create Snowflake engine: %w", err)
	}
	defer engine.Close(ctx)

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("gosfmcp", version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithHooks(hooks),
	)

	sfmcp.RegisterMCPTools(mcpServer, engine)
	sfmcp.RegisterConfigResource(mcpServer, engine)

	if serverConfig.Server.Transport == "http" {
		return serveHTTP(mcpServer, serverConfig, logger)
	}

	logger.Info().Msg("starting gosfmcp server on stdio")
	return server.ServeStdio(mcpServer)
}

func serveHTTP(mcpServer *server.MCPServer, serverConfig *sfmcp.ServerConfig, logger zerolog.Logger) error {
	if serverConfig.Server.Port <= 0 {
		panic("gosfmcp: server.port must be > 0 for the http transport")
	}
	endpointPath := serverConfig.Server.EndpointPath
	if endpointPath == "" {
		endpointPath = "/mcp"
	}

	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check reports process liveness only, not Snowflake
	// connectivity.
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			panic("gosfmcp: health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(endpointPath),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Start() does not register the MCP handler when a custom *http.Server
	// is provided, so register it here.
	mux.Handle(endpointPath, streamableServer)

	logger.Info().Int("port", serverConfig.Server.Port).Str("endpoint", endpointPath).Msg("starting gosfmcp server")
	return streamableServer.Start(addr)
}

func loadServerConfig(cmd *cobra.Command) (*sfmcp.ServerConfig, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = os.Getenv("SERVICE_CONFIG_FILE")
	}
	if configPath == "" {
		// No config file: empty permissions, which denies every statement.
		return &sfmcp.ServerConfig{}, nil
	}
	return sfmcp.LoadServerConfig(configPath)
}

// resolveConnectionParams merges the three parameter sources: command-line
// flag beats environment variable beats config file.
func resolveConnectionParams(cmd *cobra.Command, fileConn sfmcp.ConnectionConfig) auth.Params {
	get := func(flag, env, fileValue string) string {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			return v
		}
		if v := os.Getenv(env); v != "" {
			return v
		}
		return fileValue
	}

	return auth.Params{
		Account:        get("account", "SNOWFLAKE_ACCOUNT", fileConn.Account),
		Host:           get("host", "SNOWFLAKE_HOST", fileConn.Host),
		User:           get("user", "SNOWFLAKE_USER", fileConn.User),
		Password:       get("password", "SNOWFLAKE_PASSWORD", ""),
		Role:           get("role", "SNOWFLAKE_ROLE", fileConn.Role),
		Warehouse:      get("warehouse", "SNOWFLAKE_WAREHOUSE", fileConn.Warehouse),
		Database:       get("database", "SNOWFLAKE_DATABASE", fileConn.Database),
		Schema:         get("schema", "SNOWFLAKE_SCHEMA", fileConn.Schema),
		Passcode:       get("passcode", "SNOWFLAKE_PASSCODE", ""),
		Authenticator:  get("authenticator", "SNOWFLAKE_AUTHENTICATOR", fileConn.Authenticator),
		PrivateKeyFile: get("private-key-file", "SNOWFLAKE_PRIVATE_KEY_FILE", fileConn.PrivateKeyFile),
		ConnectionName: get("connection-name", "SNOWFLAKE_CONNECTION_NAME", fileConn.ConnectionName),
	}
}

// promptForPasswordIfNeeded asks for a password interactively when the
// selected flow needs one, none was supplied, and stdin is a terminal.
func promptForPasswordIfNeeded(params *auth.Params) {
	if params.User == "" || params.Password != "" {
		return
	}
	switch strings.ToLower(params.Authenticator) {
	case "", "snowflake", "username_password_mfa":
	default:
		return
	}
	if params.PrivateKey != "" || params.PrivateKeyFile != "" {
		return
	}
	if !isTTY(os.Stdin.Fd()) {
		return
	}
	params.Password = promptPassword(fmt.Sprintf("Password for %s: ", params.User))
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(password)
}

func setupLogger(config sfmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// Stdout carries the MCP stdio transport, so logs default to stderr.
	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}
